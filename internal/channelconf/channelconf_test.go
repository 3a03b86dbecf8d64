package channelconf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDuplicateNamesDisambiguatedByVChannel(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "channels.conf")
	body := `[Bounce]
SERVICE_ID = 3
VCHANNEL = 55.2
FREQUENCY = 500000000

[Bounce]
SERVICE_ID = 0x4
VCHANNEL = 55.3
FREQUENCY = 500000000
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	chans, err := Load(p)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if len(chans) != 2 {
		t.Fatalf("got %d channels, want 2", len(chans))
	}
	if chans[0].Number != "55.2" || chans[1].Number != "55.3" {
		t.Fatalf("unexpected numbers: %+v", chans)
	}
	if chans[0].Name != "Bounce" || chans[1].Name != "Bounce" {
		t.Fatalf("expected both sections named Bounce: %+v", chans)
	}
	if chans[1].ServiceID != "4" {
		t.Fatalf("hex SERVICE_ID not normalised: got %q", chans[1].ServiceID)
	}
}

func TestLoadRejectsMissingVChannel(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "channels.conf")
	if err := os.WriteFile(p, []byte("[X]\nSERVICE_ID = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for missing VCHANNEL")
	}
}

func TestLoadRejectsKeyOutsideSection(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "channels.conf")
	if err := os.WriteFile(p, []byte("SERVICE_ID = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for key outside section")
	}
}
