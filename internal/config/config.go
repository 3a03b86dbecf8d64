// Package config loads gateway configuration from the environment, in the
// same getEnv*-helper shape the teacher's own config package used.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the tuner gateway's runtime settings (spec §6).
type Config struct {
	Port             int
	ChannelsConfPath string
	EnablePreemption bool
	EnableEPG        bool
	TranscodeMode    string // "none" | "soft" | "qsv" | "nvenc" | "vaapi"
	TranscodeCodec   string // "h264" | "h265" | "av1" | "copy"
	VerboseLogging   bool

	TunerCount   int
	BaseURL      string
	DeviceID     string
	FriendlyName string

	// EPGStorePath is the sqlite file backing internal/epgstore.
	EPGStorePath string

	// XMLTVSourceURL optionally proxies an external XMLTV feed in place of
	// the self-extracted guide, which is served instead when the fetch
	// fails; "" disables it.
	XMLTVSourceURL string

	// DemodPath is the tuning/demodulation binary invoked as the first
	// stage of every childproc.Pair, given "-f <frequency> -s <serviceID>" as
	// arguments. FFmpegPath is the optional second stage, invoked only when
	// the stream's resolved selector engine is not "none" (TranscodeMode is
	// the default engine).
	DemodPath  string
	FFmpegPath string

	// ProfileOverridesPath points at a JSON file mapping channel number ->
	// "container/codec/engine" (e.g. {"55.1": "mkv/h265/qsv"}), letting an
	// operator pin a per-channel transcode profile without touching
	// request URLs. "" disables the feature.
	ProfileOverridesPath string
}

// Load reads Config from the environment.
func Load() *Config {
	c := &Config{
		Port:             getEnvInt("PORT", 3000),
		ChannelsConfPath: getEnv("CHANNELS_CONF", "./channels.conf"),
		EnablePreemption: getEnvBool("ENABLE_PREEMPTION", false),
		EnableEPG:        getEnvBool("ENABLE_EPG", true),
		TranscodeMode:    getEnv("TRANSCODE_MODE", "none"),
		TranscodeCodec:   getEnv("TRANSCODE_CODEC", "copy"),
		VerboseLogging:   getEnvBool("VERBOSE_LOGGING", false),
		TunerCount:       getEnvInt("TUNER_COUNT", 2),
		BaseURL:          os.Getenv("BASE_URL"),
		DeviceID:         getEnv("DEVICE_ID", "atsctuner01"),
		FriendlyName:     getEnv("FRIENDLY_NAME", "ATSC Tuner"),
		EPGStorePath:     getEnv("EPG_STORE_PATH", "./epg.db"),
		XMLTVSourceURL:   os.Getenv("XMLTV_SOURCE_URL"),
		DemodPath:        getEnv("DEMOD_BIN", "dvbv5-zap"),
		FFmpegPath:       getEnv("FFMPEG_BIN", "ffmpeg"),
		ProfileOverridesPath: os.Getenv("PROFILE_OVERRIDES_FILE"),
	}
	if c.TunerCount <= 0 {
		c.TunerCount = 2
	}
	if c.Port <= 0 {
		c.Port = 3000
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}
