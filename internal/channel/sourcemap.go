package channel

import "sync"

// SourceMap is the in-memory mapping (frequency, sourceId) -> virtualChannelNumber
// populated only from ATSC VCT parsing (spec §3). Programs discovered via EIT
// (which carries sourceId, not a virtual channel number) are persisted under
// the mapped virtualChannelNumber when present, otherwise under the raw
// sourceId string — the ATSC disambiguation invariant.
type SourceMap struct {
	mu sync.RWMutex
	m  map[sourceKey]string
}

type sourceKey struct {
	frequency string
	sourceID  string
}

// NewSourceMap constructs an empty map.
func NewSourceMap() *SourceMap {
	return &SourceMap{m: make(map[sourceKey]string)}
}

// Set records frequency/sourceID -> virtualChannel. Later writes for the same
// key overwrite earlier ones (a VCT re-announcement updates the mapping).
func (s *SourceMap) Set(frequency, sourceID, virtualChannel string) {
	s.mu.Lock()
	s.m[sourceKey{frequency, sourceID}] = virtualChannel
	s.mu.Unlock()
}

// Resolve returns the virtual channel number mapped for (frequency, sourceID),
// or sourceID itself (ok=false) when no VCT mapping has been seen yet.
func (s *SourceMap) Resolve(frequency, sourceID string) (virtualChannel string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, found := s.m[sourceKey{frequency, sourceID}]; found {
		return v, true
	}
	return sourceID, false
}
