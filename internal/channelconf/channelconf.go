// Package channelconf parses the channels-config file consumed by this
// gateway and the demodulator child process (spec §6): INI-like sections
// headed by "[Name]", each carrying SERVICE_ID, VCHANNEL, and FREQUENCY keys.
// Duplicate section names are permitted; disambiguation is by VCHANNEL.
package channelconf

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/snapetech/atsctuner/internal/channel"
)

// Load reads a channels-config file and returns the decoded channel list in
// file order.
func Load(path string) ([]channel.Channel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

type rawSection struct {
	name      string
	serviceID string
	vchannel  string
	frequency string
}

func parse(f *os.File) ([]channel.Channel, error) {
	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)

	var sections []rawSection
	var cur *rawSection

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if cur != nil {
				sections = append(sections, *cur)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			cur = &rawSection{name: name}
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if cur == nil {
			return nil, fmt.Errorf("channelconf: line %d: key %q outside of any [Section]", lineNo, key)
		}
		switch key {
		case "SERVICE_ID":
			cur.serviceID = val
		case "VCHANNEL":
			cur.vchannel = val
		case "FREQUENCY":
			cur.frequency = val
		}
	}
	if cur != nil {
		sections = append(sections, *cur)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("channelconf: %w", err)
	}

	out := make([]channel.Channel, 0, len(sections))
	for _, s := range sections {
		if s.vchannel == "" {
			return nil, fmt.Errorf("channelconf: section %q missing VCHANNEL", s.name)
		}
		svc, err := normalizeServiceID(s.serviceID)
		if err != nil {
			return nil, fmt.Errorf("channelconf: section %q: %w", s.name, err)
		}
		out = append(out, channel.Channel{
			Number:    s.vchannel,
			Name:      s.name,
			ServiceID: svc,
			Frequency: s.frequency,
		})
	}
	return out, nil
}

// normalizeServiceID accepts a decimal or 0x-prefixed hex string and returns
// the canonical decimal string form (spec §9: loose typing of serviceId is
// normalised to a single canonical string on load).
func normalizeServiceID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	base := 10
	trimmed := s
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		trimmed = s[2:]
	}
	n, err := strconv.ParseInt(trimmed, base, 64)
	if err != nil {
		return "", fmt.Errorf("invalid SERVICE_ID %q: %w", s, err)
	}
	return strconv.FormatInt(n, 10), nil
}
