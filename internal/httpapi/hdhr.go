package httpapi

import (
	"encoding/json"
	"net/http"
)

// serveDiscover answers HDHomeRun discover.json (spec §6), grounded on
// internal/tuner/hdhr.go's serveDiscover.
func (s *Server) serveDiscover(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"FriendlyName":    s.FriendlyName,
		"DeviceID":        s.DeviceID,
		"ModelNumber":     "ATSCTuner",
		"FirmwareName":    "atsctuner",
		"TunerCount":      s.TunerCount,
		"BaseURL":         s.BaseURL,
		"LineupURL":       s.BaseURL + "/lineup.json",
	})
}

func (s *Server) serveLineupStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	scanning := s.Scanner != nil && !s.Scanner.IsInitialScanDone()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ScanInProgress": boolToInt(scanning),
		"ScanPossible":   1,
		"Source":         "Antenna",
		"SourceList":     []string{"Antenna"},
	})
}

func (s *Server) serveLineup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var chans []channelEntry
	if s.Channels != nil {
		for _, ch := range s.Channels.All() {
			chans = append(chans, channelEntry{
				GuideNumber: ch.Number,
				GuideName:   ch.Name,
				URL:         s.BaseURL + "/stream/" + ch.Number,
			})
		}
	}
	json.NewEncoder(w).Encode(chans)
}

type channelEntry struct {
	GuideNumber string `json:"GuideNumber"`
	GuideName   string `json:"GuideName"`
	URL         string `json:"URL"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
