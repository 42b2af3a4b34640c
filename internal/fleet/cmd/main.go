package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/fleet"
)

func main() {
	cfg, o, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	level, err := parseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log, closeLog := initLogger(level, o.logPath)
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := fleet.New(cfg, log)
	if err != nil {
		log.Error("fleet init failed", "err", err)
		os.Exit(1)
	}
	if err := rt.Run(ctx); err != nil {
		log.Error("fleet stopped with error", "err", err)
		closeLog()
		os.Exit(1)
	}
}
