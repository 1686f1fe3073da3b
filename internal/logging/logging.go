package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"campaignflow/internal/config"
)

// New builds the process logger. Output always goes to stdout and, when
// cfg.OutputFile is set, is appended to that file as well. The returned
// closer releases the file and is safe to call when no file was opened.
func New(cfg config.LoggingConfig) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	closer := func() error { return nil }
	var out io.Writer = os.Stdout
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file.Close
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that opt out of logging.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
