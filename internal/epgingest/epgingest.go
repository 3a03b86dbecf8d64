// Package epgingest bridges epgscan's decoded tsepg.Update stream into
// persistent epgstore rows. It is new glue with no direct teacher
// analogue — the teacher's sdtprobe/worker.go logged decoded sections for
// inspection rather than persisting them, so the "what do I do with a
// decoded table" policy lives here rather than in tsepg or epgscan
// themselves.
package epgingest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/epgstore"
	"github.com/snapetech/atsctuner/internal/logging"
	"github.com/snapetech/atsctuner/internal/tsepg"
)

// Ingester resolves ATSC EIT/ETT source IDs to virtual channel numbers via
// channel.SourceMap (populated from each frequency's most recent VCT, per
// spec §4.5's ATSC disambiguation invariant), then writes every decoded
// event to the store keyed by that virtual channel number.
type Ingester struct {
	store *epgstore.Store
	coll  *channel.Collection
	srcs  *channel.SourceMap

	mu           sync.Mutex
	sourceByFreq map[string][]tsepg.VCTChannel
}

// New builds an Ingester backed by store, resolving ATSC source IDs against
// coll's channel collection.
func New(store *epgstore.Store, coll *channel.Collection) *Ingester {
	return &Ingester{
		store:        store,
		coll:         coll,
		srcs:         channel.NewSourceMap(),
		sourceByFreq: make(map[string][]tsepg.VCTChannel),
	}
}

// Sink adapts an Ingester into an epgscan.Sink.
func (in *Ingester) Sink(frequency string, update tsepg.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch {
	case update.VCT != nil:
		in.ingestVCT(frequency, update.VCT)

	case update.ATSCEIT != nil:
		// This demodulator multiplexes every EIT-n instance onto a single
		// base PID (tsepg.PIDATSCBase), so a decoded event doesn't carry
		// which virtual channel it belongs to — DecodeATSCEIT's sourceID
		// argument is 0 ("unresolved") for every event passed through here.
		// Each event is therefore attributed to every virtual channel this
		// frequency's VCT announced, keyed by that channel's
		// SourceMap-resolved number rather than ch's raw numeric SourceID.
		channels := in.channelsFor(frequency)
		for _, ev := range update.ATSCEIT {
			for _, ch := range channels {
				vchan, _ := in.srcs.Resolve(frequency, strconv.FormatUint(uint64(ch.SourceID), 10))
				p := epgstore.Program{
					Frequency:        frequency,
					ChannelServiceID: vchan,
					EventID:          ev.EventID,
					StartTime:        ev.StartTime,
					EndTime:          ev.StartTime.Add(ev.Duration),
					Title:            ev.Title,
				}
				if err := in.store.UpsertProgram(ctx, p); err != nil {
					logging.Debugf("epgingest: upsert atsc event failed: %v", err)
				}
			}
		}

	case update.ATSCETT != nil:
		ett := update.ATSCETT
		vchan, _ := in.srcs.Resolve(frequency, strconv.FormatUint(uint64(ett.SourceID), 10))
		if err := in.store.UpdateDescription(ctx, frequency, vchan, ett.EventID, ett.Text); err != nil {
			logging.Debugf("epgingest: update description failed: %v", err)
		}

	case update.DVBEIT != nil:
		for _, ev := range update.DVBEIT {
			p := epgstore.Program{
				Frequency:        frequency,
				ChannelServiceID: in.resolveDVBChannel(frequency, ev.ServiceID),
				EventID:          ev.EventID,
				StartTime:        ev.StartTime,
				EndTime:          ev.StartTime.Add(ev.Duration),
				Title:            ev.Title,
				Description:      ev.Text,
				Genre:            ev.Genre,
			}
			if err := in.store.UpsertProgram(ctx, p); err != nil {
				logging.Debugf("epgingest: upsert dvb event failed: %v", err)
			}
		}
	}
}

// ingestVCT resolves each VCT entry's virtual channel number per spec §4.5
// and records (frequency, sourceID) -> virtualChannel in the SourceMap, so
// that a later ATSC EIT/ETT event for the same sourceID on this frequency
// is persisted under the virtual channel rather than the raw sourceID.
func (in *Ingester) ingestVCT(frequency string, chans []tsepg.VCTChannel) {
	for _, ch := range chans {
		vchan := in.resolveVirtualChannel(frequency, ch)
		in.srcs.Set(frequency, strconv.FormatUint(uint64(ch.SourceID), 10), vchan)
	}
	in.mu.Lock()
	in.sourceByFreq[frequency] = chans
	in.mu.Unlock()
}

func (in *Ingester) channelsFor(frequency string) []tsepg.VCTChannel {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sourceByFreq[frequency]
}

// resolveVirtualChannel implements spec §4.5's VCT resolution order:
// prefer an exact (frequency, virtualChannel) match in the channel
// collection, then (frequency, program_number), then any channel carrying
// this number globally; else fall back to the raw "major.minor" label.
func (in *Ingester) resolveVirtualChannel(frequency string, ch tsepg.VCTChannel) string {
	candidate := fmt.Sprintf("%d.%d", ch.MajorChannel, ch.MinorChannel)
	if in.coll == nil {
		return candidate
	}
	if _, ok := in.coll.ByFrequencyAndNumber(frequency, candidate); ok {
		return candidate
	}
	if c, ok := in.coll.ByFrequencyAndServiceID(frequency, strconv.FormatUint(uint64(ch.ProgramNumber), 10)); ok {
		return c.Number
	}
	if c, ok := in.coll.ByNumber(candidate); ok {
		return c.Number
	}
	return candidate
}

// resolveDVBChannel maps a DVB EIT service_id (read directly off the
// section, unlike ATSC's sourceID) to the configured channel number for
// this frequency, falling back to the raw numeric ID if unconfigured.
func (in *Ingester) resolveDVBChannel(frequency string, serviceID uint16) string {
	if in.coll != nil {
		if c, ok := in.coll.ByFrequencyAndServiceID(frequency, strconv.FormatUint(uint64(serviceID), 10)); ok {
			return c.Number
		}
	}
	return strconv.FormatUint(uint64(serviceID), 10)
}
