package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/snapetech/atsctuner/internal/session"
)

// serveStream resolves /stream/<number>[/<format>[/<codec>]][?f=&c=&e=],
// leases a tuner, and relays the demodulator/transcoder pipeline to the
// client. Grounded on
// internal/tuner/gateway.go's ServeHTTP request lifecycle (lease, stream,
// release on disconnect), adapted from a proxied-IPTV upstream to a local
// session.Start/Relay/Release pipeline.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	number, container, codec := parseStreamPath(r.URL.Path)
	if number == "" {
		http.Error(w, "missing channel number", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	if f := q.Get("f"); f != "" {
		container = f
	}
	if c := q.Get("c"); c != "" {
		codec = c
	}
	engine := q.Get("e")

	ch, ok := s.Channels.ByNumber(number)
	if !ok {
		http.Error(w, "unknown channel", session.FailureChannelNotFound.HTTPStatus())
		return
	}

	container, codec, engine = s.ProfileOverrides.Apply(number, container, codec, engine)
	sel := session.BuildSelector(number, container, codec, engine, s.DefaultCodec, s.DefaultEngine)

	if s.Spawn == nil {
		http.Error(w, "streaming not configured", http.StatusInternalServerError)
		return
	}

	sess, failure, err := session.Start(r.Context(), s.Arbiter, ch, sel, s.Spawn)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.SessionErrors.WithLabelValues(failureLabel(failure)).Inc()
		}
		status := failure.HTTPStatus()
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.trackSession(sess)
	defer s.untrackSession(sess)
	defer sess.Release(s.Arbiter)

	w.Header().Set("Content-Type", sel.ContentType())
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if err := sess.Relay(ctx, w); err != nil {
		if s.Metrics != nil {
			s.Metrics.SessionErrors.WithLabelValues("relay").Inc()
		}
	}
}

// parseStreamPath splits "/stream/<number>[/<format>[/<codec>]]" into its
// channel number, container, and codec segments (spec §6). Any segment the
// client omits is returned empty, for BuildSelector to default.
func parseStreamPath(p string) (number, format, codec string) {
	p = strings.TrimPrefix(p, "/stream/")
	p = strings.TrimSuffix(p, "/")
	parts := strings.Split(p, "/")
	if len(parts) > 0 {
		number = parts[0]
	}
	if len(parts) > 1 {
		format = parts[1]
	}
	if len(parts) > 2 {
		codec = parts[2]
	}
	return
}

func failureLabel(f session.FailureClass) string {
	switch f {
	case session.FailureChannelNotFound:
		return "channel_not_found"
	case session.FailureNoTunerAvailable:
		return "no_tuner_available"
	case session.FailureChildProcessFailed:
		return "child_process_failed"
	case session.FailureClientDisconnected:
		return "client_disconnected"
	default:
		return "unknown"
	}
}

func (s *Server) trackSession(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Inc()
	}
}

func (s *Server) untrackSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Dec()
	}
}
