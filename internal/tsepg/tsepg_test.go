package tsepg

import (
	"encoding/binary"
	"testing"
	"time"
)

func tsPacket(pid uint16, pusi bool, cc uint8, payload []byte) []byte {
	pkt := make([]byte, PacketLen)
	pkt[0] = SyncByte
	pkt[1] = byte((pid >> 8) & 0x1F)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid & 0xFF)
	pkt[3] = 0x10 | (cc & 0x0F) // payload only, no adaptation field
	n := copy(pkt[4:], payload)
	for i := 4 + n; i < PacketLen; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

func TestPacketFields(t *testing.T) {
	raw := tsPacket(0x0012, true, 3, []byte{0x00, 0xAA, 0xBB})
	pkt, ok := NewPacket(raw)
	if !ok {
		t.Fatal("expected valid packet")
	}
	if pkt.PID() != 0x0012 {
		t.Errorf("PID: got %#x", pkt.PID())
	}
	if !pkt.PUSI() {
		t.Error("expected PUSI set")
	}
	if pkt.ContinuityCounter() != 3 {
		t.Errorf("CC: got %d", pkt.ContinuityCounter())
	}
	if pkt.SectionStart()[0] != 0xAA {
		t.Errorf("SectionStart: got %v", pkt.SectionStart())
	}
}

func TestSyncOffsetFindsFirstSyncByte(t *testing.T) {
	buf := append([]byte{0x00, 0x01}, SyncByte)
	if off := SyncOffset(buf); off != 2 {
		t.Errorf("got %d, want 2", off)
	}
}

// TestSectionStraddlingTwoPackets builds an artificially long section
// (> 184 bytes, the per-packet payload budget) and feeds it across two TS
// packets, verifying the reassembler delivers exactly one complete section.
func TestSectionStraddlingTwoPackets(t *testing.T) {
	section := buildDVBEITSection(t, []dvbEventSpec{
		{eventID: 1, title: "Show One", genre: 0x04},
	})
	// Pad the section well past one packet's payload with trailing descriptor
	// bytes folded into section_length so it must span two packets.
	const targetLen = 220
	if len(section) < targetLen {
		pad := make([]byte, targetLen-len(section))
		// Re-encode section_length to include the padding, then splice it in
		// right before the CRC trailer (last 4 bytes).
		section = growSection(section, pad)
	}

	var delivered [][]byte
	r := NewReassembler(func(pid uint16, s []byte) {
		cp := append([]byte(nil), s...)
		delivered = append(delivered, cp)
	})

	payload1 := section[:183] // leaves room for the 1-byte pointer_field
	payload2 := section[183:]

	p1 := tsPacket(PIDDVBEIT, true, 0, append([]byte{0x00}, payload1...))
	if err := r.Feed(mustPacket(t, p1)); err != nil {
		t.Fatalf("feed packet 1: %v", err)
	}
	p2 := tsPacket(PIDDVBEIT, false, 1, payload2)
	if err := r.Feed(mustPacket(t, p2)); err != nil {
		t.Fatalf("feed packet 2: %v", err)
	}

	if len(delivered) != 1 {
		t.Fatalf("expected exactly one delivered section, got %d", len(delivered))
	}
	if len(delivered[0]) != len(section) {
		t.Fatalf("delivered section length %d, want %d", len(delivered[0]), len(section))
	}
}

func TestReassemblerRecoversAfterCorruptPacket(t *testing.T) {
	var count int
	r := NewReassembler(func(pid uint16, s []byte) { count++ })

	section := buildDVBEITSection(t, []dvbEventSpec{{eventID: 2, title: "News", genre: 0x02}})
	good := tsPacket(PIDDVBEIT, true, 0, append([]byte{0x00}, section...))
	corrupt := make([]byte, PacketLen)
	copy(corrupt, good)
	corrupt[0] = 0x00 // break sync byte

	if _, ok := NewPacket(corrupt); ok {
		t.Fatal("expected corrupt packet to be rejected by NewPacket")
	}
	if err := r.Feed(mustPacket(t, good)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 section, got %d", count)
	}
}

func TestDecodeVCT(t *testing.T) {
	entry := buildVCTEntry(7, 1, 0x1234, 3, 0x0099, 0x02, false)
	section := buildVCTSection(entry)

	chans := DecodeVCT(section)
	if len(chans) != 1 {
		t.Fatalf("got %d channels, want 1", len(chans))
	}
	c := chans[0]
	if c.MajorChannel != 7 || c.MinorChannel != 1 {
		t.Errorf("major/minor: got %d.%d", c.MajorChannel, c.MinorChannel)
	}
	if c.SourceID != 0x0099 {
		t.Errorf("SourceID: got %#x", c.SourceID)
	}
	if c.ProgramNumber != 3 {
		t.Errorf("ProgramNumber: got %d", c.ProgramNumber)
	}
	if c.ShortName != "TEST" {
		t.Errorf("ShortName: got %q", c.ShortName)
	}
}

func TestDecodeATSCEIT(t *testing.T) {
	gpsSeconds := uint32(1167264018) // lands exactly on a leap-second table entry
	section := buildATSCEITSection(t, 42, gpsSeconds, 1800, "Evening News")

	events := DecodeATSCEIT(section, 0x0099)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.EventID != 42 {
		t.Errorf("EventID: got %d", e.EventID)
	}
	if e.Title != "Evening News" {
		t.Errorf("Title: got %q", e.Title)
	}
	if e.Duration != 1800*time.Second {
		t.Errorf("Duration: got %v", e.Duration)
	}
	want := GPSToUTC(gpsSeconds)
	if !e.StartTime.Equal(want) {
		t.Errorf("StartTime: got %v, want %v", e.StartTime, want)
	}
}

func TestDecodeETT(t *testing.T) {
	section := buildETTSection(t, 0x0099, 42, "A longer synopsis of tonight's broadcast.")
	ett, ok := DecodeETT(section)
	if !ok {
		t.Fatal("expected DecodeETT to succeed")
	}
	if ett.SourceID != 0x0099 || ett.EventID != 42 {
		t.Errorf("got sourceID=%#x eventID=%d", ett.SourceID, ett.EventID)
	}
	if ett.Text != "A longer synopsis of tonight's broadcast." {
		t.Errorf("Text: got %q", ett.Text)
	}
}

func TestDecodeDVBEIT(t *testing.T) {
	section := buildDVBEITSection(t, []dvbEventSpec{
		{eventID: 9, title: "Match of the Day", genre: 0x04},
	})
	events := DecodeDVBEIT(section)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Title != "Match of the Day" {
		t.Errorf("Title: got %q", events[0].Title)
	}
	if events[0].Genre != "Sports" {
		t.Errorf("Genre: got %q", events[0].Genre)
	}
	if !events[0].IsNow {
		t.Error("expected IsNow true for section_number 0")
	}
}

func TestGPSToUTCEpoch(t *testing.T) {
	got := GPSToUTC(0)
	want := time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGPSToUTCAppliesLeapOffset(t *testing.T) {
	// One second after the 2016-12-31 leap second boundary: offset should be
	// the full 18s, not 17s.
	got := GPSToUTC(1167264019)
	want := gpsEpoch.Add(1167264019*time.Second - 18*time.Second)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParserFeedAcrossCalls(t *testing.T) {
	section := buildDVBEITSection(t, []dvbEventSpec{{eventID: 5, title: "Quiz Night", genre: 0x03}})
	pkt := tsPacket(PIDDVBEIT, true, 0, append([]byte{0x00}, section...))

	var updates []Update
	p := NewParser(func(u Update) { updates = append(updates, u) })

	if err := p.Feed(pkt[:100]); err != nil {
		t.Fatalf("feed first half: %v", err)
	}
	if err := p.Feed(pkt[100:]); err != nil {
		t.Fatalf("feed second half: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if len(updates[0].DVBEIT) != 1 || updates[0].DVBEIT[0].Title != "Quiz Night" {
		t.Fatalf("unexpected update: %+v", updates[0])
	}
}

// ── test fixtures ────────────────────────────────────────────────────────

func mustPacket(t *testing.T, raw []byte) Packet {
	t.Helper()
	pkt, ok := NewPacket(raw)
	if !ok {
		t.Fatalf("invalid synthetic packet")
	}
	return pkt
}

func buildVCTEntry(major, minor, tsid, progNum, sourceID uint16, svcType byte, hidden bool) []byte {
	entry := make([]byte, 32)
	name := []byte{0, 'T', 0, 'E', 0, 'S', 0, 'T', 0, 0, 0, 0, 0, 0}
	copy(entry[0:14], name)

	b0 := byte((major >> 6) & 0x0F)
	b1 := byte((major&0x3F)<<2) | byte((minor>>8)&0x03)
	b2 := byte(minor & 0xFF)
	entry[14], entry[15], entry[16] = b0, b1, b2

	entry[17] = 0x04 // modulation_mode (arbitrary, not exercised)
	binary.BigEndian.PutUint32(entry[18:22], 0)
	binary.BigEndian.PutUint16(entry[22:24], tsid)
	binary.BigEndian.PutUint16(entry[24:26], progNum)
	var flags byte
	if hidden {
		flags |= 0x10
	}
	entry[26] = flags
	entry[27] = svcType & 0x3F
	binary.BigEndian.PutUint16(entry[28:30], sourceID)
	binary.BigEndian.PutUint16(entry[30:32], 0) // descriptors_length = 0
	return entry
}

func buildVCTSection(entry []byte) []byte {
	header := make([]byte, 10)
	header[0] = tableVCTTerrestrial
	header[9] = 1 // num_channels_in_section
	tail := make([]byte, 2+4)
	body := append(append(append([]byte{}, header...), entry...), tail...)
	totalLen := len(body)
	sectionLength := totalLen - 3
	body[1] = 0xB0 | byte((sectionLength>>8)&0x0F)
	body[2] = byte(sectionLength & 0xFF)
	return body
}

func buildATSCEITSection(t *testing.T, eventID uint16, startGPS uint32, durationSeconds uint32, title string) []byte {
	t.Helper()
	header := make([]byte, 10)
	header[0] = tableATSCEIT
	header[9] = 1 // num_events_in_section

	mss := buildMSSSingleSegment(title)
	event := make([]byte, 10+len(mss)+2)
	binary.BigEndian.PutUint16(event[0:2], eventID&0x3FFF)
	binary.BigEndian.PutUint32(event[2:6], startGPS)
	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, durationSeconds&0x000FFFFF)
	copy(event[6:9], lenBytes[1:4])
	event[9] = byte(len(mss))
	copy(event[10:10+len(mss)], mss)
	// descriptors_length = 0
	binary.BigEndian.PutUint16(event[10+len(mss):10+len(mss)+2], 0)

	tail := make([]byte, 4)
	body := append(append([]byte{}, header...), event...)
	body = append(body, tail...)
	totalLen := len(body)
	sectionLength := totalLen - 3
	body[1] = 0xB0 | byte((sectionLength>>8)&0x0F)
	body[2] = byte(sectionLength & 0xFF)
	return body
}

func buildETTSection(t *testing.T, sourceID uint16, eventID uint16, text string) []byte {
	t.Helper()
	header := make([]byte, 13)
	header[0] = tableATSCETT
	etmID := (uint32(sourceID) << 16) | (uint32(eventID&0x3FFF) << 2)
	binary.BigEndian.PutUint32(header[9:13], etmID)

	mss := buildMSSSingleSegment(text)
	tail := make([]byte, 4)
	body := append(append(append([]byte{}, header...), mss...), tail...)
	totalLen := len(body)
	sectionLength := totalLen - 3
	body[1] = 0xB0 | byte((sectionLength>>8)&0x0F)
	body[2] = byte(sectionLength & 0xFF)
	return body
}

// buildMSSSingleSegment encodes an ATSC multiple_string_structure with one
// language entry, one uncompressed ISO-8859-1 segment.
func buildMSSSingleSegment(s string) []byte {
	out := []byte{1}           // number_strings
	out = append(out, 'e', 'n', 'g')
	out = append(out, 1) // number_segments
	out = append(out, 0) // compression_type = none
	out = append(out, 0) // mode = ISO 8859-1
	out = append(out, byte(len(s)))
	out = append(out, []byte(s)...)
	return out
}

type dvbEventSpec struct {
	eventID uint16
	title   string
	genre   byte
}

func buildDVBEITSection(t *testing.T, events []dvbEventSpec) []byte {
	t.Helper()
	header := make([]byte, 14)
	header[0] = tableEITPFActual
	header[6] = 0 // section_number 0 => "now"

	var body []byte
	for _, ev := range events {
		entry := make([]byte, 12)
		binary.BigEndian.PutUint16(entry[0:2], ev.eventID)
		// start_time: all-0xFF = undefined, acceptable for this test since
		// we only assert Title/Genre/IsNow.
		entry[2], entry[3] = 0xFF, 0xFF
		entry[4], entry[5], entry[6] = 0xFF, 0xFF, 0xFF
		entry[7], entry[8], entry[9] = 0xFF, 0xFF, 0xFF

		shortEv := buildShortEventDescriptor(ev.title, "")
		content := []byte{0x54, 2, ev.genre << 4, 0x00}
		descLoop := append(append([]byte{}, shortEv...), content...)
		binary.BigEndian.PutUint16(entry[10:12], uint16(len(descLoop)))

		body = append(body, entry...)
		body = append(body, descLoop...)
	}
	tail := make([]byte, 4)
	full := append(append(append([]byte{}, header...), body...), tail...)
	totalLen := len(full)
	sectionLength := totalLen - 3
	full[1] = 0xB0 | byte((sectionLength>>8)&0x0F)
	full[2] = byte(sectionLength & 0xFF)
	return full
}

func buildShortEventDescriptor(name, text string) []byte {
	payload := []byte{'e', 'n', 'g'}
	payload = append(payload, byte(len(name)))
	payload = append(payload, []byte(name)...)
	payload = append(payload, byte(len(text)))
	payload = append(payload, []byte(text)...)
	return append([]byte{descriptorShortEv, byte(len(payload))}, payload...)
}

// growSection splices pad bytes in just before the 4-byte CRC trailer and
// re-encodes section_length to match.
func growSection(section []byte, pad []byte) []byte {
	crc := section[len(section)-4:]
	body := section[:len(section)-4]
	grown := append(append(append([]byte{}, body...), pad...), crc...)
	sectionLength := len(grown) - 3
	grown[1] = (grown[1] & 0xF0) | byte((sectionLength>>8)&0x0F)
	grown[2] = byte(sectionLength & 0xFF)
	return grown
}

func TestSanitizeATSCTextStripsControlCharsKeepsTab(t *testing.T) {
	got := sanitizeATSCText("Evening\x01 News\x7F\tSpecial  ")
	want := "Evening News\tSpecial"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeUTF16BEStripsControlChars(t *testing.T) {
	runes := []uint16{'H', 'i', 0x0001, ' ', 'T', 'V', 0x007F}
	b := make([]byte, 0, len(runes)*2)
	for _, u := range runes {
		b = append(b, byte(u>>8), byte(u))
	}
	got := decodeUTF16BE(b)
	if got != "Hi TV" {
		t.Fatalf("got %q, want %q", got, "Hi TV")
	}
}

func TestDecodeDVBStringFiltersToPrintableASCII(t *testing.T) {
	got := decodeDVBString([]byte{0x05, 'N', 'e', 'w', 's', 0x8D, 0xE9, '!'})
	if got != "News!" {
		t.Fatalf("got %q, want %q", got, "News!")
	}
}
