// Package httpapi exposes the gateway's external HTTP surface (spec §6):
// HDHomeRun-style discovery, M3U/XMLTV guide documents, the live-stream
// endpoint, JSON snapshots, and health/metrics. The server lifecycle
// (ServeMux, logging middleware, graceful Shutdown on context cancellation,
// /healthz readiness) is carried over from internal/tuner/server.go's
// Run/logRequests/serveHealth.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/snapetech/atsctuner/internal/arbiter"
	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/epgscan"
	"github.com/snapetech/atsctuner/internal/epgstore"
	"github.com/snapetech/atsctuner/internal/logging"
	"github.com/snapetech/atsctuner/internal/metrics"
	"github.com/snapetech/atsctuner/internal/session"
)

// Server wires the channel collection, arbiter, store, and scanner behind
// the HTTP surface. Exported fields mirror the teacher's Server struct
// shape (set once at startup, read by handlers).
type Server struct {
	Addr         string
	BaseURL      string
	DeviceID     string
	FriendlyName string
	TunerCount   int

	Channels *channel.Collection
	Arbiter  *arbiter.Arbiter
	Store    *epgstore.Store
	Scanner  *epgscan.Scanner
	Metrics  *metrics.Registry
	Spawn    session.Spawner

	// DefaultCodec/DefaultEngine seed session.BuildSelector when a stream
	// request doesn't specify its own codec/engine (spec §4.3), mirroring
	// config.Config's TRANSCODE_CODEC/TRANSCODE_MODE environment defaults.
	DefaultCodec  string
	DefaultEngine string

	// ProfileOverrides pins a "container/codec/engine" profile per channel
	// number, filling in any fields a stream request leaves blank before
	// the gateway-wide defaults apply (spec §4.3 supplement).
	ProfileOverrides session.ProfileOverrides

	// XMLTVSourceURL, when set to a valid http(s) URL, is fetched and
	// proxied verbatim in place of the self-generated guide document —
	// useful when an operator already has a richer third-party XMLTV feed
	// for the same lineup.
	XMLTVSourceURL string

	mu       sync.Mutex
	sessions map[string]*session.Session

	healthMu      sync.RWMutex
	healthRefresh time.Time

	xmltvMu      sync.RWMutex
	xmltvCached  []byte
	xmltvCacheExp time.Time
}

// New builds a Server ready for Run.
func New() *Server {
	return &Server{sessions: make(map[string]*session.Session)}
}

// Run builds the route table, optionally starts SSDP announcement, and
// serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/discover.json", s.serveDiscover)
	mux.HandleFunc("/lineup_status.json", s.serveLineupStatus)
	mux.HandleFunc("/lineup.json", s.serveLineup)
	mux.HandleFunc("/device.xml", s.serveDeviceXML)
	mux.HandleFunc("/playlist.m3u", s.serveM3U)
	mux.HandleFunc("/lineup.m3u", s.serveM3U)
	mux.HandleFunc("/xmltv.xml", s.serveXMLTV)
	mux.HandleFunc("/guide.xml", s.serveXMLTV)
	mux.HandleFunc("/api/now-playing", s.serveNowPlaying)
	mux.HandleFunc("/api/guide", s.serveGuideWindow)
	mux.HandleFunc("/stream/", s.serveStream)
	mux.HandleFunc("/healthz", s.serveHealth)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	if os.Getenv("ATSCTUNER_SSDP_DISABLED") == "" {
		StartSSDP(ctx, s.Addr, s.BaseURL, s.DeviceID)
	}

	srv := &http.Server{
		Addr:    s.Addr,
		Handler: logRequests(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// SetHealthy records that the channel collection has been loaded and
// refreshed, for /healthz.
func (s *Server) SetHealthy() {
	s.healthMu.Lock()
	s.healthRefresh = time.Now()
	s.healthMu.Unlock()
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.healthMu.RLock()
	refresh := s.healthRefresh
	s.healthMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if refresh.IsZero() || s.Channels == nil || s.Channels.Len() == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"channels":     s.Channels.Len(),
		"last_refresh": refresh.Format(time.RFC3339),
		"epg_ready":    s.Scanner == nil || s.Scanner.IsInitialScanDone(),
	})
}

func (s *Server) serveDeviceXML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>%s</friendlyName>
    <manufacturer>ATSCTuner</manufacturer>
    <modelName>ATSCTuner</modelName>
    <UDN>uuid:%s</UDN>
  </device>
</root>`, s.FriendlyName, s.DeviceID)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(lw, r)
		logging.Infof("http method=%s path=%s status=%d bytes=%d duration=%s remote=%s",
			r.Method, r.URL.Path, lw.status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func parseIntOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
