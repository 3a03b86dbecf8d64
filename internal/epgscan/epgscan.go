// Package epgscan orchestrates periodic EPG capture sweeps across every
// known frequency (C4). The ticker/force-rescan-channel/sweep loop and the
// "wait until every tuner is idle before starting" guard are grounded on
// internal/sdtprobe/worker.go's Worker.Run/waitForQuiet — the direct
// analogue of "don't scan while a viewer is watching live TV".
package epgscan

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/snapetech/atsctuner/internal/arbiter"
	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/childproc"
	"github.com/snapetech/atsctuner/internal/logging"
	"github.com/snapetech/atsctuner/internal/tsepg"
)

// Tuning knobs. Cold-start gets a longer per-frequency budget since nothing
// is known yet; background sweeps use a shorter one since they're topping
// up data that's already mostly there.
const (
	ColdStartPerFreqTimeout = 30 * time.Second
	BackgroundPerFreqTimeout = 15 * time.Second
	BackgroundInterval      = 15 * time.Minute
	InterMuxDelay           = 2 * time.Second
	QuietPollInterval       = 2 * time.Second

	// maxCaptureBytes bounds a single frequency's capture buffer; unrelated
	// to tsepg's per-section 4KB guard, this bounds the whole raw TS read.
	maxCaptureBytes = 50 * 1024 * 1024
)

// Spawner builds the capture-only demodulator argv for one frequency (no
// transcode stage; epgscan only needs the raw TS bytes to feed tsepg).
type Spawner func(frequency string) []string

// Sink receives decoded table updates as each frequency is captured.
type Sink func(frequency string, update tsepg.Update)

// Scanner runs the cold-start and background EPG capture cadence.
type Scanner struct {
	arb     *arbiter.Arbiter
	coll    *channel.Collection
	spawn   Spawner
	sink    Sink
	limiter *rate.Limiter

	initialScanDone chan struct{}
	doneOnce        bool
}

// New builds a Scanner. coll supplies the frequency work list (spec §4.4:
// the scanner sweeps per-frequency, not per-channel, since a single
// ATSC/DVB mux carries every channel in that frequency's VCT/SDT).
func New(arb *arbiter.Arbiter, coll *channel.Collection, spawn Spawner, sink Sink) *Scanner {
	return &Scanner{
		arb:             arb,
		coll:            coll,
		spawn:           spawn,
		sink:            sink,
		limiter:         rate.NewLimiter(rate.Every(InterMuxDelay), 1),
		initialScanDone: make(chan struct{}),
	}
}

// IsInitialScanDone reports whether the cold-start sweep has completed.
func (s *Scanner) IsInitialScanDone() bool {
	select {
	case <-s.initialScanDone:
		return true
	default:
		return false
	}
}

// WaitInitialScan blocks (polling every 2s) until the cold-start sweep
// finishes or ctx is cancelled.
func (s *Scanner) WaitInitialScan(ctx context.Context) error {
	ticker := time.NewTicker(QuietPollInterval)
	defer ticker.Stop()
	for {
		if s.IsInitialScanDone() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run repeats a background sweep every BackgroundInterval until ctx is
// cancelled. storeExists controls the startup behaviour (spec §4.4(i)/(ii)
// and S6): when false (no persistent store yet), Run performs an immediate
// deep sweep with ColdStartPerFreqTimeout before marking the initial scan
// done; when true, the startup sweep is skipped entirely and the initial
// scan is marked done right away, so dependent services aren't blocked
// waiting on data that's already on disk.
func (s *Scanner) Run(ctx context.Context, storeExists bool) {
	if storeExists {
		s.markInitialScanDone()
	} else {
		s.sweep(ctx, ColdStartPerFreqTimeout)
		s.markInitialScanDone()
	}

	ticker := time.NewTicker(BackgroundInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, BackgroundPerFreqTimeout)
		}
	}
}

func (s *Scanner) markInitialScanDone() {
	if !s.doneOnce {
		s.doneOnce = true
		close(s.initialScanDone)
	}
}

// sweep waits for every tuner to be idle, then captures each frequency in
// turn, pacing the inter-mux delay via rate.Limiter rather than a bare
// time.Sleep loop.
func (s *Scanner) sweep(ctx context.Context, perFreqTimeout time.Duration) {
	if err := s.waitAllIdle(ctx); err != nil {
		return
	}
	freqs := s.coll.Frequencies()
	for _, freq := range freqs {
		if ctx.Err() != nil {
			return
		}
		s.captureOne(ctx, freq, perFreqTimeout)
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
}

// waitAllIdle blocks until every tuner is free, polling at QuietPollInterval.
func (s *Scanner) waitAllIdle(ctx context.Context) error {
	ticker := time.NewTicker(QuietPollInterval)
	defer ticker.Stop()
	for {
		if s.arb.IsAllIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scanner) captureOne(ctx context.Context, frequency string, timeout time.Duration) {
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lease, err := s.arb.Acquire(captureCtx, arbiter.EPG)
	if err != nil {
		logging.Debugf("epgscan: frequency=%s acquire failed: %v", frequency, err)
		return
	}
	defer s.arb.Release(lease)

	pair, err := childproc.Spawn(captureCtx, s.spawn(frequency), nil)
	if err != nil {
		logging.Infof("epgscan: frequency=%s spawn failed: %v", frequency, err)
		return
	}
	defer pair.Stop()

	parser := tsepg.NewParser(func(u tsepg.Update) {
		if s.sink != nil {
			s.sink(frequency, u)
		}
	})

	var total int64
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-captureCtx.Done():
			logging.Debugf("epgscan: frequency=%s capture done, %s read", frequency, humanize.Bytes(uint64(total)))
			return
		default:
		}
		n, rerr := pair.Output.Read(buf)
		if n > 0 {
			total += int64(n)
			if err := parser.Feed(buf[:n]); err != nil {
				logging.Debugf("epgscan: frequency=%s parse error: %v", frequency, err)
			}
			if total >= maxCaptureBytes {
				logging.Infof("epgscan: frequency=%s hit %s capture cap", frequency, humanize.Bytes(uint64(maxCaptureBytes)))
				return
			}
		}
		if rerr != nil {
			return
		}
	}
}
