package session

import (
	"encoding/json"
	"os"
	"strings"
)

// ProfileOverrides maps a channel number to a pinned "container/codec/engine"
// profile string, loaded from an operator-supplied JSON file. Grounded on
// internal/tuner/gateway.go's loadProfileOverridesFile/ProfileOverrides,
// repurposed from a Plex transcode-profile name lookup to this gateway's
// container/codec/engine selector.
type ProfileOverrides map[string]Selector

// LoadProfileOverrides reads a JSON file of the form
// {"55.1": "mkv/h265/qsv", "7.1": "ts/copy"} and parses each value into a
// partial Selector (BuildSelector still fills in anything the profile
// leaves blank). An empty path disables the feature and returns (nil, nil),
// matching loadProfileOverridesFile's "" -> (nil, nil) convention.
func LoadProfileOverrides(path string) (ProfileOverrides, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]string{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(ProfileOverrides, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = parseProfileString(v)
	}
	return out, nil
}

// parseProfileString parses "container/codec/engine". One segment is read
// as the codec ("h265"), two as container/codec ("mkv/h265"); any other
// segment count yields an empty Selector.
func parseProfileString(v string) Selector {
	parts := strings.Split(strings.TrimSpace(v), "/")
	var sel Selector
	switch len(parts) {
	case 1:
		sel.Codec = parts[0]
	case 2:
		sel.Container = parts[0]
		sel.Codec = parts[1]
	case 3:
		sel.Container = parts[0]
		sel.Codec = parts[1]
		sel.Engine = parts[2]
	}
	return sel
}

// For looks up a channel's pinned profile, if any.
func (p ProfileOverrides) For(channelNumber string) (Selector, bool) {
	if p == nil {
		return Selector{}, false
	}
	sel, ok := p[channelNumber]
	return sel, ok
}

// Apply fills any blank container/codec/engine request fields from the
// channel's override profile, leaving fields the request already specified
// untouched. An explicit request always wins over a pinned profile, which
// in turn wins over the gateway-wide default passed to BuildSelector.
func (p ProfileOverrides) Apply(channelNumber, container, codec, engine string) (string, string, string) {
	sel, ok := p.For(channelNumber)
	if !ok {
		return container, codec, engine
	}
	if container == "" {
		container = sel.Container
	}
	if codec == "" {
		codec = sel.Codec
	}
	if engine == "" {
		engine = sel.Engine
	}
	return container, codec, engine
}
