package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger: JSON records to w, or to a rotated
// file when file is set. The returned closer flushes the file.
func newLogger(level, file string, w io.Writer) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}

	var closer io.Closer = io.NopCloser(nil)
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w, closer = rotated, rotated
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	return logger, closer, nil
}
