package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// nowPlayingEntry is one channel's currently-airing program, as returned by
// /api/now-playing.
type nowPlayingEntry struct {
	Channel     string `json:"channel"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Genre       string `json:"genre,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
}

// serveNowPlaying answers the current program on every channel, sourced
// from epgstore.SelectActive. Channels with no matching row are still
// listed, with the program fields omitted.
func (s *Server) serveNowPlaying(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var out []nowPlayingEntry
	if s.Channels == nil {
		json.NewEncoder(w).Encode(out)
		return
	}

	now := time.Now().UTC()
	for _, ch := range s.Channels.All() {
		entry := nowPlayingEntry{Channel: ch.Number, Name: ch.Name}
		if s.Store != nil {
			if p, ok, err := s.Store.SelectActive(r.Context(), ch.Frequency, ch.Number, now); err == nil && ok {
				entry.Title = p.Title
				entry.Description = p.Description
				entry.Genre = p.Genre
				entry.StartTime = p.StartTime.Format(time.RFC3339)
				entry.EndTime = p.EndTime.Format(time.RFC3339)
			}
		}
		out = append(out, entry)
	}
	json.NewEncoder(w).Encode(out)
}

// guideEntry is one program within a requested guide window.
type guideEntry struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Genre       string `json:"genre,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type guideChannel struct {
	Channel  string       `json:"channel"`
	Name     string       `json:"name"`
	Programs []guideEntry `json:"programs"`
}

// serveGuideWindow answers /api/guide?channel=<number>&hours=<n>, returning
// the programs airing on that channel (or every channel, if unset) over the
// next `hours` hours (default 6).
func (s *Server) serveGuideWindow(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.Channels == nil || s.Store == nil {
		json.NewEncoder(w).Encode([]guideChannel{})
		return
	}

	hours := parseIntOr(r.URL.Query().Get("hours"), 6)
	if hours <= 0 {
		hours = 6
	}
	from := time.Now().UTC()
	to := from.Add(time.Duration(hours) * time.Hour)

	wanted := r.URL.Query().Get("channel")
	var channels []struct {
		number, name, freq string
	}
	for _, ch := range s.Channels.All() {
		if wanted != "" && ch.Number != wanted {
			continue
		}
		channels = append(channels, struct{ number, name, freq string }{ch.Number, ch.Name, ch.Frequency})
	}

	out := make([]guideChannel, 0, len(channels))
	for _, ch := range channels {
		programs, err := s.Store.SelectWindow(r.Context(), ch.freq, ch.number, from, to)
		if err != nil {
			continue
		}
		gc := guideChannel{Channel: ch.number, Name: ch.name}
		for _, p := range programs {
			gc.Programs = append(gc.Programs, guideEntry{
				Title:       p.Title,
				Description: p.Description,
				Genre:       p.Genre,
				StartTime:   p.StartTime.Format(time.RFC3339),
				EndTime:     p.EndTime.Format(time.RFC3339),
			})
		}
		out = append(out, gc)
	}
	json.NewEncoder(w).Encode(out)
}
