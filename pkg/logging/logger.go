// Package logging provides structured logging for factmap using zerolog.
// Console output is used when stderr is a terminal, JSON otherwise.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("record", "Q1").Msg("Reconciling record")
//
//	ctx := logging.WithRecord(context.Background(), "Q1")
//	logging.FromContext(ctx).Debug().Msg("Using logger from context")
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultLogger backs Default and FromContext when no logger is attached.
var defaultLogger zerolog.Logger

func init() {
	defaultLogger = NewLoggerFromConfig(envConfig())
}

// envConfig reads FACTMAP_LOG_LEVEL, FACTMAP_LOG_FORMAT and NO_COLOR.
// FACTMAP_DEBUG set to anything raises the level to debug.
func envConfig() *Config {
	cfg := DefaultConfig()
	if level := os.Getenv("FACTMAP_LOG_LEVEL"); level != "" {
		cfg.Level = level
	} else if os.Getenv("FACTMAP_DEBUG") != "" {
		cfg.Level = "debug"
	}
	if format := os.Getenv("FACTMAP_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	return cfg
}

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault sets the default global logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
