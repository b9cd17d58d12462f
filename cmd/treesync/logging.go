package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/treesync/internal/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logClosers []io.Closer

func setupLogging(levelName, logFile string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return fmt.Errorf("invalid log level %q", levelName)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	if logFile == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return nil
	}

	if err := utils.EnsureParent(logFile); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14,
	}
	interceptor := utils.NewLogInterceptor(rotator)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: level,
		// the interceptor stamps the time
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	logClosers = append(logClosers, interceptor, rotator)
	return nil
}

func closeLogging() error {
	var errs []error
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	logClosers = nil
	return errors.Join(errs...)
}
