// Package observability owns logger construction for the CLI and server
// surfaces.
//
// Commands log human-readable lines to stderr; the server logs structured
// JSON. Both share the configured level. Loggers default to no-ops so
// packages can log before Init runs (tests, early startup).
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is the console logger used by cobra commands.
	CLILogger = zap.NewNop()

	// ServerLogger is the JSON logger used by long-running components.
	ServerLogger = zap.NewNop()
)

// Init builds the package loggers at the given level ("debug", "info",
// "warn", "error").
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cliCfg := zap.NewDevelopmentConfig()
	cliCfg.Level = zap.NewAtomicLevelAt(lvl)
	cliCfg.DisableStacktrace = true
	cli, err := cliCfg.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}

	srvCfg := zap.NewProductionConfig()
	srvCfg.Level = zap.NewAtomicLevelAt(lvl)
	srv, err := srvCfg.Build()
	if err != nil {
		return fmt.Errorf("build server logger: %w", err)
	}

	CLILogger = cli
	ServerLogger = srv
	return nil
}

// Sync flushes buffered log entries. Best-effort; called on shutdown.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
