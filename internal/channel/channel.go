// Package channel holds the immutable-after-load channel collection, the
// per-frequency SourceMap, and the Tuner/LeaseState data types.
package channel

import (
	"sync"
)

// Channel is a tunable virtual service (spec §3). The demodulator is tuned
// with Frequency and ServiceID; neither Number nor Name is passed to it.
// Duplicate channel names are disambiguated by Number (see channelconf).
type Channel struct {
	Number    string // e.g. "55.1"
	Name      string
	ServiceID string // canonical decimal string, normalised on load (see §9)
	Frequency string // Hz, decimal string
	IconURL   string
}

// LeaseState is the mutable state of a physical Tuner.
type LeaseState int

const (
	Idle LeaseState = iota
	Live
	EPG
	DVR
	Cleaning
)

func (s LeaseState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Live:
		return "live"
	case EPG:
		return "epg"
	case DVR:
		return "dvr"
	case Cleaning:
		return "cleaning"
	default:
		return "unknown"
	}
}

// Tuner is a physical receiver record. The arbiter does not use it; it keeps
// its own per-tuner lease table.
type Tuner struct {
	ID         int
	DevicePath string
	State      LeaseState
}

// Collection is the immutable, read-only-after-load set of known channels.
// Safe for concurrent reads; Replace is intended to be called at most once,
// at startup, before any reader goroutine starts (spec §9: hot-reload is out
// of scope, the collection is treated as immutable for the process lifetime).
type Collection struct {
	mu       sync.RWMutex
	channels []Channel
	byNumber map[string]int
}

// NewCollection builds an immutable snapshot from a slice of channels.
func NewCollection(channels []Channel) *Collection {
	c := &Collection{}
	c.Replace(channels)
	return c
}

// Replace atomically swaps the backing channel list.
func (c *Collection) Replace(channels []Channel) {
	cp := make([]Channel, len(channels))
	copy(cp, channels)
	idx := make(map[string]int, len(cp))
	for i, ch := range cp {
		idx[ch.Number] = i
	}
	c.mu.Lock()
	c.channels = cp
	c.byNumber = idx
	c.mu.Unlock()
}

// All returns a snapshot copy of every known channel.
func (c *Collection) All() []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Channel, len(c.channels))
	copy(out, c.channels)
	return out
}

// ByNumber resolves a virtual channel number to a Channel.
func (c *Collection) ByNumber(number string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byNumber[number]
	if !ok {
		return Channel{}, false
	}
	return c.channels[i], true
}

// ByFrequencyAndNumber looks up a channel by its exact (frequency, virtual
// channel number) pair — the first-preference match in the ATSC VCT
// source-ID resolution order (spec §4.5).
func (c *Collection) ByFrequencyAndNumber(frequency, number string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.channels {
		if ch.Frequency == frequency && ch.Number == number {
			return ch, true
		}
	}
	return Channel{}, false
}

// ByFrequencyAndServiceID looks up a channel by (frequency, ServiceID) —
// the second-preference match in the ATSC VCT source-ID resolution order
// (spec §4.5 "program_number"), and also used to key DVB EIT rows, whose
// service_id is read directly off the section.
func (c *Collection) ByFrequencyAndServiceID(frequency, serviceID string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.channels {
		if ch.Frequency == frequency && ch.ServiceID == serviceID {
			return ch, true
		}
	}
	return Channel{}, false
}

// Frequencies returns the distinct set of frequencies across all channels, in
// first-seen order. Used by the EPG scan orchestrator to build its per-mux
// work list (spec §4.4).
func (c *Collection) Frequencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.channels))
	out := make([]string, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.Frequency == "" {
			continue
		}
		if _, ok := seen[ch.Frequency]; ok {
			continue
		}
		seen[ch.Frequency] = struct{}{}
		out = append(out, ch.Frequency)
	}
	return out
}

// Len returns the number of loaded channels.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}
