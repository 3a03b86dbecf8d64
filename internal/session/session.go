// Package session runs the live-streaming session state machine (C3):
// Starting -> Streaming -> Draining -> Released, backed by a demodulator/
// transcoder child-process pair leased from the arbiter. The "spawn child,
// stream stdout to the client, watch for stall, classify teardown errors"
// shape is carried over from internal/tuner/gateway.go's ServeHTTP/
// relayHLSAsTS, though the upstream there is a proxied IPTV URL rather than
// a local child process.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/atsctuner/internal/arbiter"
	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/childproc"
	"github.com/snapetech/atsctuner/internal/logging"
)

// State is a session's position in its lifecycle.
type State int

const (
	Starting State = iota
	Streaming
	Draining
	Released
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// settleDelay is how long a session waits after spawning its child
// processes before it starts relaying bytes, giving the demodulator time to
// lock before the first read.
const settleDelay = 1 * time.Second

// watchdogTick/staleThreshold implement the stall watchdog: if no bytes
// have been relayed for staleThreshold, the session tears itself down.
const watchdogTick = 5 * time.Second
const staleThreshold = 30 * time.Second

// Selector is a parsed stream request: which channel, and what
// container/codec/transcode-engine profile to apply (spec §4.3). Build it
// with BuildSelector rather than constructing it directly, so the
// defaulting and engine-upgrade rules are applied consistently.
type Selector struct {
	ChannelNumber string
	Container     string // "ts" | "mkv" | "mp4"
	Codec         string // "copy" | "h264" | "h265" | "av1"
	Engine        string // "none" | "soft" | "qsv" | "nvenc" | "vaapi"
}

var codecAliases = map[string]string{
	"264":  "h264",
	"265":  "h265",
	"hevc": "h265",
	"av1":  "av1",
	"copy": "copy",
}

// NormalizeCodec maps a requested codec string to its canonical form.
// Unknown codecs pass through unchanged; the caller decides whether that's
// an error.
func NormalizeCodec(requested string) string {
	if canon, ok := codecAliases[requested]; ok {
		return canon
	}
	return requested
}

// BuildSelector normalises a raw container/codec/engine request into a
// Selector per spec §4.3: codec aliases are canonicalised; an unrequested
// codec falls back to defaultCodec; container defaults to "ts" (or "mkv"
// when the resolved codec is "av1" and no container was requested); an
// unrequested engine falls back to defaultEngine; and a non-copy codec
// paired with engine "none" is upgraded to "soft".
func BuildSelector(channelNumber, container, codec, engine, defaultCodec, defaultEngine string) Selector {
	codec = NormalizeCodec(codec)
	if codec == "" {
		codec = NormalizeCodec(defaultCodec)
	}
	if codec == "" {
		codec = "copy"
	}

	if container == "" {
		if codec == "av1" {
			container = "mkv"
		} else {
			container = "ts"
		}
	}

	if engine == "" {
		engine = defaultEngine
	}
	if engine == "" {
		engine = "none"
	}
	if codec != "copy" && engine == "none" {
		engine = "soft"
	}

	return Selector{ChannelNumber: channelNumber, Container: container, Codec: codec, Engine: engine}
}

// ContentType returns the HTTP response content type for sel's container.
func (sel Selector) ContentType() string {
	switch sel.Container {
	case "mkv":
		return "video/x-matroska"
	case "mp4":
		return "video/mp4"
	default:
		return "video/mp2t"
	}
}

// FailureClass buckets a session failure for HTTP status mapping (spec §7).
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureChannelNotFound
	FailureNoTunerAvailable
	FailureChildProcessFailed
	FailureClientDisconnected
)

// HTTPStatus maps a FailureClass to the status code the HTTP surface
// should return.
func (f FailureClass) HTTPStatus() int {
	switch f {
	case FailureChannelNotFound:
		return 404
	case FailureNoTunerAvailable:
		return 503
	case FailureChildProcessFailed:
		return 502
	case FailureClientDisconnected:
		return 0 // nothing to write; the client is already gone
	default:
		return 200
	}
}

// Session is one live-stream hand-off from tuner lease to client socket.
type Session struct {
	ID       string
	Channel  channel.Channel
	Selector Selector

	mu    sync.Mutex
	state State

	arb   *arbiter.Arbiter
	lease *arbiter.Lease
	pair  *childproc.Pair

	lastActivity time.Time
}

// Spawner builds the demodulator/transcoder argv for a channel + selector.
// Supplied by the caller so this package stays agnostic of the actual
// tuning/transcode binaries in use.
type Spawner func(ch channel.Channel, sel Selector) (demodArgs []string, transArgs []string)

// Start acquires a tuner lease, spawns the child-process pair, and waits
// out settleDelay before returning a Session ready to stream.
func Start(ctx context.Context, a *arbiter.Arbiter, ch channel.Channel, sel Selector, spawn Spawner) (*Session, FailureClass, error) {
	lease, err := a.Acquire(ctx, arbiter.Live)
	if err != nil {
		return nil, FailureNoTunerAvailable, fmt.Errorf("session: acquire tuner: %w", err)
	}

	demodArgs, transArgs := spawn(ch, sel)
	pair, err := childproc.Spawn(ctx, demodArgs, transArgs)
	if err != nil {
		a.Release(lease)
		return nil, FailureChildProcessFailed, fmt.Errorf("session: spawn: %w", err)
	}

	s := &Session{
		ID:           uuid.NewString(),
		Channel:      ch,
		Selector:     sel,
		state:        Starting,
		arb:          a,
		lease:        lease,
		pair:         pair,
		lastActivity: time.Now(),
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
	}
	s.setState(Streaming)
	logging.Infof("session:%s channel=%s codec=%s state=streaming", s.ID, ch.Number, sel.Codec)
	return s, FailureNone, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Relay copies the child pipeline's output to w until the context is
// cancelled, the pipeline exits, the stall watchdog fires, or the arbiter
// preempts this session's lease for a higher-priority request (spec §4.1).
// Disconnect writes are treated as a normal end of stream, not an error
// (gateway.go's isClientDisconnectWriteError semantics).
func (s *Session) Relay(ctx context.Context, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchdogDone := make(chan struct{})
	go s.watchdog(ctx, watchdogDone, cancel)
	defer func() { <-watchdogDone }()

	preemptDone := make(chan struct{})
	go s.watchPreemption(ctx, preemptDone, cancel)
	defer func() { <-preemptDone }()

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, rerr := s.pair.Output.Read(buf)
		if n > 0 {
			s.touch()
			if _, werr := w.Write(buf[:n]); werr != nil {
				if childproc.IsDisconnectError(werr) {
					return nil
				}
				return fmt.Errorf("session: write: %w", werr)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			if childproc.IsDisconnectError(rerr) {
				return nil
			}
			return fmt.Errorf("session: read: %w", rerr)
		}
	}
}

// watchPreemption ends the session as soon as the arbiter signals that a
// higher-priority request wants this tuner back. The lease itself is freed
// by the caller's deferred Release once Relay returns; this goroutine only
// needs to stop the relay loop promptly so that release can happen.
func (s *Session) watchPreemption(ctx context.Context, done chan<- struct{}, cancel context.CancelFunc) {
	defer close(done)
	if s.arb == nil {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-s.arb.Preempted(s.lease):
		logging.Infof("session:%s preempted, tearing down", s.ID)
		cancel()
	}
}

func (s *Session) watchdog(ctx context.Context, done chan<- struct{}, cancel context.CancelFunc) {
	defer close(done)
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.idleFor() >= staleThreshold {
				logging.Infof("session:%s watchdog: no activity for %s, tearing down", s.ID, staleThreshold)
				cancel()
				return
			}
		}
	}
}

// Release tears down the child-process pair and frees the tuner lease.
// Idempotent: safe to call more than once, and safe on a half-started
// Session (e.g. if Start failed after acquiring but before returning).
func (s *Session) Release(a *arbiter.Arbiter) {
	s.setState(Draining)
	s.pair.Stop()
	a.Release(s.lease)
	s.setState(Released)
	logging.Infof("session:%s state=released", s.ID)
}
