package main

import (
	"context"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

// slogLogger adapts the process-level slog handler to the logging contract
// the intake engine is wired with.
type slogLogger struct {
	base *slog.Logger
}

func newSlogLogger() glog.Logger {
	level := slog.LevelInfo
	if os.Getenv("INTAKE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &slogLogger{base: slog.New(handler)}
}

func (l *slogLogger) Trace(msg string, args ...any) {
	l.base.Debug(msg, args...)
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.base.Debug(msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.base.Info(msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.base.Warn(msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.base.Error(msg, args...)
}

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.base.Error(msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(context.Context) glog.Logger {
	return l
}

var _ glog.Logger = (*slogLogger)(nil)
