package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
)

// serveM3U writes an #EXTM3U playlist, grounded on internal/tuner/m3u.go's
// M3UServe.ServeHTTP. Query params ?f=<container>&c=<codec> are forwarded
// onto every per-channel stream URL (spec §6), so a client that wants e.g.
// fragmented-MP4/H.265 playback can request it once for the whole lineup.
func (s *Server) serveM3U(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	fmt.Fprintf(w, "#EXTM3U url-tvg=\"%s/xmltv.xml\"\n", s.BaseURL)
	if s.Channels == nil {
		return
	}
	suffix := streamQuerySuffix(r.URL.Query())
	for _, ch := range s.Channels.All() {
		fmt.Fprintf(w, "#EXTINF:-1 tvg-id=%q tvg-name=%q,%s\n", ch.Number, escapeM3UAttr(ch.Name), ch.Name)
		fmt.Fprintf(w, "%s/stream/%s%s\n", s.BaseURL, ch.Number, suffix)
	}
}

func streamQuerySuffix(q url.Values) string {
	vals := url.Values{}
	if f := q.Get("f"); f != "" {
		vals.Set("f", f)
	}
	if c := q.Get("c"); c != "" {
		vals.Set("c", c)
	}
	if len(vals) == 0 {
		return ""
	}
	return "?" + vals.Encode()
}

func escapeM3UAttr(s string) string {
	escaped := url.QueryEscape(s)
	return escaped
}
