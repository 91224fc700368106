// Command pmk boots the protected-mode teaching kernel: it loads a
// read-only filesystem image, assembles a Machine, registers the builtin
// shell program, and brings up the operator console and/or the network
// terminal bridge. Adapted from the teacher's own main: getopt flags, a
// slog handler writing to an optional log file, and signal-driven
// graceful shutdown.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	stdsyscall "syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/kernellab/pmk/internal/bootconfig"
	"github.com/kernellab/pmk/internal/console"
	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/hostterm"
	"github.com/kernellab/pmk/internal/logging"
	"github.com/kernellab/pmk/internal/machine"
	"github.com/kernellab/pmk/internal/netterm"
	"github.com/kernellab/pmk/internal/shell"
)

func main() {
	optConfigPath := getopt.StringLong("config", 'c', "", "Boot configuration file")
	optImagePath := getopt.StringLong("image", 'i', "", "Filesystem image (overrides the config file)")
	optLogPath := getopt.StringLong("log", 'l', "", "Log file (overrides the config file)")
	optRateHz := getopt.IntLong("rate", 'r', 0, "PIT quantum rate in Hz (overrides the config file)")
	optNoConsole := getopt.BoolLong("no-console", 0, "Disable the interactive operator console")
	optHostTerminal := getopt.BoolLong("host-terminal", 't', "Bridge the host's own stdin/stdout to terminal slot 0 instead of the operator console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	cfg := bootconfig.Default()
	if *optConfigPath != "" {
		f, err := os.Open(*optConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pmk:", err)
			os.Exit(1)
		}
		cfg, err = bootconfig.Parse(f)
		f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "pmk:", err)
			os.Exit(1)
		}
	}
	if *optImagePath != "" {
		cfg.ImagePath = *optImagePath
	}
	if *optLogPath != "" {
		cfg.LogPath = *optLogPath
	}
	if *optRateHz != 0 {
		cfg.RateHz = *optRateHz
	}
	if cfg.ImagePath == "" {
		fmt.Fprintln(os.Stderr, "pmk: no filesystem image given (-i or \"image\" in the config file)")
		os.Exit(1)
	}

	var logFile *os.File
	if cfg.LogPath != "" {
		var err error
		logFile, err = os.Create(cfg.LogPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pmk:", err)
			os.Exit(1)
		}
		defer logFile.Close()
	}
	logging.SetDebugMask(cfg.DebugMask)
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	slog.SetDefault(slog.New(logging.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel}, cfg.DebugMask != 0)))

	raw, err := os.ReadFile(cfg.ImagePath)
	if err != nil {
		slog.Error("pmk: reading filesystem image", "path", cfg.ImagePath, "error", err)
		os.Exit(1)
	}
	fsImage, err := fsimage.Load(raw)
	if err != nil {
		slog.Error("pmk: loading filesystem image", "path", cfg.ImagePath, "error", err)
		os.Exit(1)
	}

	m := machine.New(machine.Config{
		FS:     fsImage,
		RateHz: cfg.RateHz,
		OnFatal: func() {
			slog.Error("pmk: fatal CPU exception, halted")
		},
	})
	if cfg.RTCHz != m.RTC.RateHz() {
		if err := m.RTC.SetRate(cfg.RTCHz); err != nil {
			slog.Warn("pmk: rejecting configured RTC rate", "rate", cfg.RTCHz, "error", err)
		}
	}
	m.RegisterProgram("shell", shell.Run)

	slog.Info("pmk: starting", "image", cfg.ImagePath, "rate", cfg.RateHz)
	m.Start()

	var netSrv *netterm.Server
	if cfg.NetBase != 0 {
		netSrv = netterm.New(m.Terminals, m, cfg.NetBase)
		if err := netSrv.Start(); err != nil {
			slog.Error("pmk: starting network terminals", "error", err)
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, stdsyscall.SIGINT, stdsyscall.SIGTERM)

	var host *hostterm.Host
	switch {
	case *optHostTerminal:
		host = hostterm.New(m, m.Terminals)
		if err := host.Start(); err != nil {
			slog.Error("pmk: starting host terminal bridge", "error", err)
			os.Exit(1)
		}
		<-sigChan
	case *optNoConsole:
		<-sigChan
	default:
		consoleDone := make(chan struct{})
		c := console.New(m.Arena, m.Scheduler, m.Terminals, m.Memory, os.Stdout)
		go func() {
			c.Run()
			close(consoleDone)
		}()
		select {
		case <-sigChan:
		case <-consoleDone:
		}
	}

	slog.Info("pmk: shutting down")
	if host != nil {
		host.Stop()
	}
	if netSrv != nil {
		netSrv.Stop()
	}
	m.Stop()
	slog.Info("pmk: stopped")
}
