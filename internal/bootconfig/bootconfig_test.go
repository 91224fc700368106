package bootconfig

import (
	"strings"
	"testing"

	"github.com/kernellab/pmk/internal/logging"
)

func TestParseAppliesDirectivesOverDefaults(t *testing.T) {
	src := `
# boot configuration
image   /var/pmk/disk.img
log     /var/log/pmk.log
rate    200
rtcrate 4
netport 6100
debug scheduler syscall
`
	cfg, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ImagePath != "/var/pmk/disk.img" {
		t.Errorf("ImagePath = %q", cfg.ImagePath)
	}
	if cfg.LogPath != "/var/log/pmk.log" {
		t.Errorf("LogPath = %q", cfg.LogPath)
	}
	if cfg.RateHz != 200 {
		t.Errorf("RateHz = %d", cfg.RateHz)
	}
	if cfg.RTCHz != 4 {
		t.Errorf("RTCHz = %d", cfg.RTCHz)
	}
	if cfg.NetBase != 6100 {
		t.Errorf("NetBase = %d", cfg.NetBase)
	}
	want := logging.DebugScheduler | logging.DebugSyscall
	if cfg.DebugMask != want {
		t.Errorf("DebugMask = %d, want %d", cfg.DebugMask, want)
	}
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	cfg, err := Parse(strings.NewReader("\n# comment only\n   \n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults unchanged, got %+v", cfg)
	}
}

func TestParseRejectsUnknownDirective(t *testing.T) {
	if _, err := Parse(strings.NewReader("bogus 1\n")); err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}

func TestParseRejectsBadRate(t *testing.T) {
	if _, err := Parse(strings.NewReader("rate notanumber\n")); err == nil {
		t.Fatal("expected an error for a non-numeric rate")
	}
	if _, err := Parse(strings.NewReader("rate 0\n")); err == nil {
		t.Fatal("expected an error for a zero rate")
	}
}

func TestParseRejectsUnknownDebugComponent(t *testing.T) {
	if _, err := Parse(strings.NewReader("debug nonsense\n")); err == nil {
		t.Fatal("expected an error for an unknown debug component")
	}
}
