package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.Port != 3000 {
		t.Errorf("Port default: got %d", c.Port)
	}
	if c.ChannelsConfPath != "./channels.conf" {
		t.Errorf("ChannelsConfPath default: got %q", c.ChannelsConfPath)
	}
	if c.EnablePreemption {
		t.Error("EnablePreemption should default false")
	}
	if !c.EnableEPG {
		t.Error("EnableEPG should default true")
	}
	if c.TunerCount != 2 {
		t.Errorf("TunerCount default: got %d", c.TunerCount)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("PORT", "8080")
	os.Setenv("ENABLE_PREEMPTION", "true")
	os.Setenv("ENABLE_EPG", "false")
	os.Setenv("TRANSCODE_MODE", "soft")
	os.Setenv("TRANSCODE_CODEC", "h264")
	os.Setenv("VERBOSE_LOGGING", "1")
	os.Setenv("TUNER_COUNT", "4")
	c := Load()
	if c.Port != 8080 {
		t.Errorf("Port: got %d", c.Port)
	}
	if !c.EnablePreemption {
		t.Error("EnablePreemption should be true")
	}
	if c.EnableEPG {
		t.Error("EnableEPG should be false")
	}
	if c.TranscodeMode != "soft" {
		t.Errorf("TranscodeMode: got %q", c.TranscodeMode)
	}
	if c.TranscodeCodec != "h264" {
		t.Errorf("TranscodeCodec: got %q", c.TranscodeCodec)
	}
	if !c.VerboseLogging {
		t.Error("VerboseLogging should be true")
	}
	if c.TunerCount != 4 {
		t.Errorf("TunerCount: got %d", c.TunerCount)
	}
}

func TestLoadTunerCountNonPositiveFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("TUNER_COUNT", "0")
	c := Load()
	if c.TunerCount != 2 {
		t.Errorf("TunerCount should fall back to 2; got %d", c.TunerCount)
	}
}
