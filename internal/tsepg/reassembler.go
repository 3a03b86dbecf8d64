package tsepg

import "fmt"

// maxSectionLen is the largest a PSI/SI section can legally be:
// section_length may not exceed 4093 (private sections; most PSI tables cap
// it lower), plus the 3-byte header it doesn't count. This guards against a corrupt length field growing a
// buffer without bound; it has nothing to do with epgscan's much larger
// 50MB raw-capture cap, which bounds the whole capture file instead of one
// section.
const maxSectionLen = 4096

type sectionBuf struct {
	buf  []byte
	want int // -1 until the header's section_length has been read
	done bool
}

func (s *sectionBuf) sectionLenFromHeader() int {
	if len(s.buf) < 3 {
		return -1
	}
	return int(uint16(s.buf[1]&0x0F)<<8|uint16(s.buf[2])) + 3
}

// Reassembler buffers section payloads per PID across packet boundaries and
// invokes onSection once a complete section has been assembled. Unlike
// sdtprobe's single-shot probe, it keeps buffering across however many
// packets a section spans, and keeps running across the lifetime of a
// capture.
type Reassembler struct {
	pids      map[uint16]*sectionBuf
	onSection func(pid uint16, section []byte)
}

// NewReassembler builds a Reassembler that calls onSection for each
// complete section seen on any PID.
func NewReassembler(onSection func(pid uint16, section []byte)) *Reassembler {
	return &Reassembler{
		pids:      make(map[uint16]*sectionBuf),
		onSection: onSection,
	}
}

// Feed processes one TS packet. Packets with a transport error or without a
// payload are ignored, matching live-capture practice of simply dropping
// what a demodulator already flagged as corrupt.
func (r *Reassembler) Feed(pkt Packet) error {
	if pkt.TransportError() || !pkt.HasPayload() {
		return nil
	}
	pid := pkt.PID()
	payload := pkt.Payload()
	if payload == nil {
		return nil
	}

	if pkt.PUSI() {
		if len(payload) < 1 {
			return fmt.Errorf("tsepg: pid %d: PUSI packet with empty payload", pid)
		}
		ptr := int(payload[0])
		if 1+ptr > len(payload) {
			return fmt.Errorf("tsepg: pid %d: pointer_field %d exceeds payload", pid, ptr)
		}
		before := payload[1 : 1+ptr]
		after := payload[1+ptr:]

		if sb, ok := r.pids[pid]; ok && !sb.done {
			r.append(pid, sb, before)
		}

		sb := &sectionBuf{want: -1}
		r.pids[pid] = sb
		r.append(pid, sb, after)
		return nil
	}

	sb, ok := r.pids[pid]
	if !ok || sb.done {
		return nil // continuation with no section in flight; nothing to do
	}
	r.append(pid, sb, payload)
	return nil
}

func (r *Reassembler) append(pid uint16, sb *sectionBuf, data []byte) {
	if sb.done || len(data) == 0 {
		return
	}
	sb.buf = append(sb.buf, data...)
	if sb.want < 0 {
		sb.want = sb.sectionLenFromHeader()
	}
	if sb.want < 0 {
		return
	}
	if sb.want > maxSectionLen {
		sb.done = true // corrupt length field; discard rather than grow unbounded
		return
	}
	if len(sb.buf) >= sb.want {
		section := sb.buf[:sb.want]
		sb.done = true
		if r.onSection != nil {
			r.onSection(pid, section)
		}
	}
}

// Reset drops all in-flight buffers, used when a capture restarts on a new
// frequency.
func (r *Reassembler) Reset() {
	r.pids = make(map[uint16]*sectionBuf)
}
