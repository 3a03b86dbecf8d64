package httpapi

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/atsctuner/internal/httpclient"
	"github.com/snapetech/atsctuner/internal/logging"
	"github.com/snapetech/atsctuner/internal/safeurl"
)

// guideWindow bounds how far ahead an XMLTV/JSON guide response looks.
const guideWindow = 14 * 24 * time.Hour

// xmltvCacheTTL bounds how often an external XMLTV source is re-fetched,
// grounded on internal/tuner/xmltv.go's cachedXML/cacheExp TTL cache.
const xmltvCacheTTL = 10 * time.Minute

// serveXMLTV writes an XMLTV document covering every known channel over
// guideWindow, sourced from the EPG store. When XMLTVSourceURL is set, it
// takes priority: the external feed is fetched (cached for xmltvCacheTTL,
// same double-checked-locking shape as internal/tuner/xmltv.go) and proxied
// verbatim instead of the self-generated document.
func (s *Server) serveXMLTV(w http.ResponseWriter, r *http.Request) {
	if s.XMLTVSourceURL != "" {
		if body, ok := s.fetchExternalXMLTV(r.Context()); ok {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(body)
			return
		}
		logging.Infof("xmltv: external source unavailable, falling back to self-generated guide")
	}

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<tv>\n")

	if s.Channels == nil {
		fmt.Fprint(w, "</tv>\n")
		return
	}
	chans := s.Channels.All()
	for _, ch := range chans {
		fmt.Fprintf(w, "  <channel id=%q>\n    <display-name>%s</display-name>\n  </channel>\n",
			xmlEscape(ch.Number), xmlEscape(ch.Name))
	}

	if s.Store != nil {
		now := time.Now().UTC()
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		for _, ch := range chans {
			programs, err := s.Store.SelectWindow(ctx, ch.Frequency, ch.Number, now, now.Add(guideWindow))
			if err != nil {
				continue
			}
			for _, p := range programs {
				fmt.Fprintf(w, "  <programme start=%q stop=%q channel=%q>\n", xmltvTime(p.StartTime), xmltvTime(p.EndTime), xmlEscape(ch.Number))
				fmt.Fprintf(w, "    <title>%s</title>\n", xmlEscape(p.Title))
				if p.Description != "" {
					fmt.Fprintf(w, "    <desc>%s</desc>\n", xmlEscape(p.Description))
				}
				if p.Genre != "" {
					fmt.Fprintf(w, "    <category>%s</category>\n", xmlEscape(p.Genre))
				}
				fmt.Fprint(w, "  </programme>\n")
			}
		}
	}
	fmt.Fprint(w, "</tv>\n")
}

// fetchExternalXMLTV returns the cached external feed body, refetching it
// once xmltvCacheTTL has elapsed. Double-checked locking matches
// internal/tuner/xmltv.go's XMLTV.fetch.
func (s *Server) fetchExternalXMLTV(ctx context.Context) ([]byte, bool) {
	s.xmltvMu.RLock()
	if time.Now().Before(s.xmltvCacheExp) && s.xmltvCached != nil {
		body := s.xmltvCached
		s.xmltvMu.RUnlock()
		return body, true
	}
	s.xmltvMu.RUnlock()

	if !safeurl.IsHTTPOrHTTPS(s.XMLTVSourceURL) {
		logging.Infof("xmltv: refusing non-http(s) source %q", s.XMLTVSourceURL)
		return nil, false
	}

	s.xmltvMu.Lock()
	defer s.xmltvMu.Unlock()
	if time.Now().Before(s.xmltvCacheExp) && s.xmltvCached != nil {
		return s.xmltvCached, true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.XMLTVSourceURL, nil)
	if err != nil {
		logging.Infof("xmltv: build request: %v", err)
		return nil, false
	}
	release := httpclient.GlobalHostSem.Acquire(s.XMLTVSourceURL)
	defer release()
	resp, err := httpclient.Default().Do(req)
	if err != nil {
		logging.Infof("xmltv: fetch %s: %v", s.XMLTVSourceURL, err)
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logging.Infof("xmltv: fetch %s: status %d", s.XMLTVSourceURL, resp.StatusCode)
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		logging.Infof("xmltv: read body: %v", err)
		return nil, false
	}
	s.xmltvCached = body
	s.xmltvCacheExp = time.Now().Add(xmltvCacheTTL)
	return body, true
}

func xmltvTime(t time.Time) string {
	return t.UTC().Format("20060102150405 +0000")
}

func xmlEscape(s string) string {
	var buf []byte
	w := xmlWriter{&buf}
	xml.EscapeText(w, []byte(s))
	return string(buf)
}

type xmlWriter struct {
	buf *[]byte
}

func (w xmlWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
