package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/snapetech/atsctuner/internal/logging"
)

// ssdp answers HDHomeRun-style SSDP M-SEARCH discovery over UDP so Plex and
// similar clients can find the gateway without manual configuration.
// Grounded on internal/tuner/ssdp.go's SSDP.Run/sendSearchResponse; the
// read-loop/timeout/M-SEARCH-match shape is unchanged, only the response
// header values move from "Plex-Tuner" to this gateway's identity.
type ssdp struct {
	deviceID     string
	friendlyName string
	deviceXMLURL string
}

func (s *ssdp) run(ctx context.Context) error {
	pc, err := net.ListenPacket("udp", ":1900")
	if err != nil {
		return fmt.Errorf("ssdp: listen udp: %w", err)
	}
	defer pc.Close()

	logging.Infof("ssdp: listening on :1900")

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pc.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		msg := string(buf[:n])
		if !strings.Contains(msg, "M-SEARCH") {
			continue
		}
		if strings.Contains(msg, "ssdp:all") ||
			strings.Contains(msg, "urn:schemas-upnp-org:device:MediaServer") ||
			strings.Contains(msg, "urn:schemas-upnp-org:device:Basic:1") {
			pc.WriteTo([]byte(s.searchResponse()), udpAddr)
		}
	}
}

func (s *ssdp) searchResponse() string {
	return fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"CACHE-CONTROL: max-age=300\r\n"+
			"EXT:\r\n"+
			"LOCATION: %s\r\n"+
			"SERVER: ATSCTuner/1.0\r\n"+
			"ST: urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"USN: uuid:%s::urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"\r\n",
		s.deviceXMLURL, s.deviceID,
	)
}

// StartSSDP launches the SSDP responder in the background. It is a no-op if
// baseURL does not parse into a usable device.xml location.
func StartSSDP(ctx context.Context, httpAddr, baseURL, deviceID string) {
	deviceXMLURL := joinDeviceXMLURL(baseURL)
	if deviceXMLURL == "" {
		logging.Infof("ssdp: disabled, base URL %q is empty or invalid", baseURL)
		return
	}
	s := &ssdp{deviceID: deviceID, friendlyName: "ATSC Tuner", deviceXMLURL: deviceXMLURL}
	go func() {
		if err := s.run(ctx); err != nil {
			logging.Infof("ssdp: %v", err)
		}
	}()
}

func joinDeviceXMLURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/device.xml"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
