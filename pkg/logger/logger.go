// Package logger wraps zerolog behind the call shape the rest of the
// engine uses: Info/Warn/Error/Debug(scope, msg, fields).
package logger

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var global zerolog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init points the global logger at logPath, falling back to stdout if the
// file can't be opened. serviceName is attached to every event.
func Init(logPath string, level zerolog.Level, serviceName string) error {
	var writer = os.Stdout

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				global = zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", serviceName).Logger()
				global.Warn().Err(err).Str("path", logPath).Msg("failed to create log directory, logging to stdout")
				return nil
			}
		}
		file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			global = zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", serviceName).Logger()
			global.Warn().Err(err).Str("path", logPath).Msg("failed to open log file, logging to stdout")
			return nil
		}
		global = zerolog.New(file).Level(level).With().Timestamp().Str("service", serviceName).Logger()
		return nil
	}

	global = zerolog.New(writer).Level(level).With().Timestamp().Str("service", serviceName).Logger()
	return nil
}

func withFields(ev *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	return ev
}

// Info logs an info-level event scoped to scope.
func Info(scope, msg string, args ...map[string]interface{}) {
	withFields(global.Info().Str("scope", scope), getCtx(args)).Msg(msg)
}

// Warn logs a warn-level event scoped to scope.
func Warn(scope, msg string, args ...map[string]interface{}) {
	withFields(global.Warn().Str("scope", scope), getCtx(args)).Msg(msg)
}

// Error logs an error-level event scoped to scope.
func Error(scope, msg string, args ...map[string]interface{}) {
	withFields(global.Error().Str("scope", scope), getCtx(args)).Msg(msg)
}

// Debug logs a debug-level event scoped to scope.
func Debug(scope, msg string, args ...map[string]interface{}) {
	withFields(global.Debug().Str("scope", scope), getCtx(args)).Msg(msg)
}

func getCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}
