package tsepg

// Update is emitted for each fully decoded table seen during a capture.
// Exactly one of the slice/value fields is populated per Update.
type Update struct {
	VCT      []VCTChannel
	ATSCEIT  []ATSCEvent
	ATSCETT  *ATSCExtendedText
	DVBEIT   []DVBEvent
	PID      uint16
	TableID  byte
}

// Parser decodes a raw TS byte stream into VCT/EIT/ETT/DVB-EIT updates. It
// owns a Reassembler and dispatches each completed section by table_id —
// the ATSC and DVB table spaces don't overlap, so one dispatch function
// handles both without needing to know in advance which standard a given
// capture uses.
type Parser struct {
	reassembler *Reassembler
	onUpdate    func(Update)
	sync        []byte // carry-over bytes that didn't form a whole packet yet
}

// NewParser builds a Parser that calls onUpdate for each decoded table.
func NewParser(onUpdate func(Update)) *Parser {
	p := &Parser{onUpdate: onUpdate}
	p.reassembler = NewReassembler(p.dispatch)
	return p
}

func (p *Parser) dispatch(pid uint16, section []byte) {
	if len(section) == 0 {
		return
	}
	tableID := section[0]
	switch {
	case tableID == tableVCTTerrestrial || tableID == tableVCTCable:
		if chans := DecodeVCT(section); len(chans) > 0 {
			p.onUpdate(Update{VCT: chans, PID: pid, TableID: tableID})
		}
	case tableID == tableATSCEIT:
		// The section's source_id field is not read: every event is emitted
		// with SourceID 0, and epgingest attributes it to every VCT channel
		// seen on the same frequency.
		if events := DecodeATSCEIT(section, 0); len(events) > 0 {
			p.onUpdate(Update{ATSCEIT: events, PID: pid, TableID: tableID})
		}
	case tableID == tableATSCETT:
		if ett, ok := DecodeETT(section); ok {
			p.onUpdate(Update{ATSCETT: &ett, PID: pid, TableID: tableID})
		}
	case IsDVBEITTable(tableID):
		if events := DecodeDVBEIT(section); len(events) > 0 {
			p.onUpdate(Update{DVBEIT: events, PID: pid, TableID: tableID})
		}
	}
}

// Feed accepts an arbitrary-length chunk of a TS byte stream (as produced
// incrementally by a demodulator's stdout) and processes every complete,
// sync-aligned 188-byte packet it contains. Leftover bytes are carried over
// to the next Feed call.
func (p *Parser) Feed(chunk []byte) error {
	buf := chunk
	if len(p.sync) > 0 {
		buf = append(p.sync, chunk...)
		p.sync = nil
	}

	off := SyncOffset(buf)
	for off+PacketLen <= len(buf) {
		if buf[off] != SyncByte {
			off += SyncOffset(buf[off:])
			continue
		}
		pkt, ok := NewPacket(buf[off : off+PacketLen])
		if !ok {
			off++
			continue
		}
		if err := p.reassembler.Feed(pkt); err != nil {
			return err
		}
		off += PacketLen
	}
	if off < len(buf) {
		p.sync = append([]byte(nil), buf[off:]...)
	}
	return nil
}

// Reset clears in-flight section buffers and any carried-over partial
// packet, used when a capture restarts on a new frequency.
func (p *Parser) Reset() {
	p.reassembler.Reset()
	p.sync = nil
}
