package main

import (
	"io"
	"log/slog"
	"os"
)

// initLogger writes text logs to stdout and, when path is set, appends them
// to that file too.
func initLogger(level slog.Level, path string) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: level}
	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l := slog.New(slog.NewTextHandler(os.Stdout, opts))
		l.Error("failed to open log file", "path", path, "err", err)
		return l, func() {}
	}
	l := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), opts))
	l.Info("logger initialized", "file", path)
	return l, func() { _ = f.Close() }
}
