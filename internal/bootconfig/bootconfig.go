// Package bootconfig reads the kernel's boot configuration file: one
// directive per line, '#' starts a comment, blank lines are ignored.
// Adapted from the teacher's line-oriented config parser, reduced to the
// handful of directives this kernel actually has (no device-attach
// grammar to carry over).
package bootconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kernellab/pmk/internal/logging"
	"github.com/kernellab/pmk/internal/pit"
	"github.com/kernellab/pmk/internal/rtc"
)

// Config holds everything main needs to assemble a Machine before Start.
type Config struct {
	ImagePath string // path to the boot-block filesystem image
	LogPath   string // "" means stderr
	RateHz    int    // PIT quantum rate, pit.DefaultRateHz if unset
	RTCHz     int    // initial RTC periodic rate, rtc.DefaultRateHz if unset
	NetBase   int    // 0 disables netterm
	DebugMask int
}

// Default returns the configuration a bare `pmk` invocation boots with.
func Default() Config {
	return Config{
		RateHz: pit.DefaultRateHz,
		RTCHz:  rtc.DefaultRateHz,
	}
}

// Parse reads directives from r into a Config seeded from Default().
//
//	image   <path>
//	log     <path>
//	rate    <hz>
//	rtcrate <hz>
//	netport <port>
//	debug   <scheduler|syscall|keyboard|paging>...
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if hash := strings.IndexByte(line, '#'); hash >= 0 {
			line = line[:hash]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		directive, args := strings.ToLower(fields[0]), fields[1:]
		if err := apply(&cfg, directive, args); err != nil {
			return cfg, fmt.Errorf("bootconfig: line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("bootconfig: %w", err)
	}
	return cfg, nil
}

func apply(cfg *Config, directive string, args []string) error {
	switch directive {
	case "image":
		if len(args) != 1 {
			return fmt.Errorf("image requires exactly one path")
		}
		cfg.ImagePath = args[0]
	case "log":
		if len(args) != 1 {
			return fmt.Errorf("log requires exactly one path")
		}
		cfg.LogPath = args[0]
	case "rate":
		hz, err := requireHz(args)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.RateHz = hz
	case "rtcrate":
		hz, err := requireHz(args)
		if err != nil {
			return fmt.Errorf("rtcrate: %w", err)
		}
		cfg.RTCHz = hz
	case "netport":
		if len(args) != 1 {
			return fmt.Errorf("netport requires exactly one number")
		}
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 0 {
			return fmt.Errorf("netport must be a non-negative number")
		}
		cfg.NetBase = port
	case "debug":
		mask, err := parseDebugMask(args)
		if err != nil {
			return err
		}
		cfg.DebugMask |= mask
	default:
		return fmt.Errorf("unknown directive %q", directive)
	}
	return nil
}

func requireHz(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("requires exactly one number")
	}
	hz, err := strconv.Atoi(args[0])
	if err != nil || hz <= 0 {
		return 0, fmt.Errorf("must be a positive number")
	}
	return hz, nil
}

func parseDebugMask(args []string) (int, error) {
	mask := 0
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "scheduler":
			mask |= logging.DebugScheduler
		case "syscall":
			mask |= logging.DebugSyscall
		case "keyboard":
			mask |= logging.DebugKeyboard
		case "paging":
			mask |= logging.DebugPaging
		default:
			return 0, fmt.Errorf("unknown debug component %q", arg)
		}
	}
	return mask, nil
}
