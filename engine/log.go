package engine

import (
	"io"
	"log/slog"
	"os"

	"github.com/Konsultn-Engineering/ducktype/config"
)

func newLogger(cfg config.LoggingConfig, output io.Writer) (*slog.Logger, error) {
	level, err := (&config.Config{Logging: cfg}).SlogLevel()
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}
	return slog.New(handler).With(slog.String("component", "ducktype")), nil
}
