// Package clog is the target's leveled logging seam. Subsystems hold a
// Clog value, never a concrete logger, so the backend can be swapped
// without touching call sites.
package clog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogProvider is the minimal leveled-logging surface a Clog needs.
type LogProvider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Clog is the logging handle embedded by every subsystem. Output is
// disabled by default; call LogMode(true) to enable it.
type Clog struct {
	provider LogProvider
	// has is 1 when logging is enabled, 0 when disabled.
	has uint32
}

// NewLogger builds a Clog backed by a zerolog console writer tagged
// with component.
func NewLogger(component string) Clog {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("component", component).Logger()
	return Clog{
		provider: zerologLogger{zl},
		has:      0,
	}
}

// LogMode enables or disables log output.
func (sf *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&sf.has, 1)
	} else {
		atomic.StoreUint32(&sf.has, 0)
	}
}

// SetLogProvider overrides the backing provider.
func (sf *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		sf.provider = p
	}
}

// Critical logs a CRITICAL level message.
func (sf Clog) Critical(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Critical(format, v...)
	}
}

// Error logs an ERROR level message.
func (sf Clog) Error(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Error(format, v...)
	}
}

// Warn logs a WARN level message.
func (sf Clog) Warn(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Warn(format, v...)
	}
}

// Debug logs a DEBUG level message.
func (sf Clog) Debug(format string, v ...interface{}) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Debug(format, v...)
	}
}

// zerologLogger adapts a zerolog.Logger to LogProvider.
type zerologLogger struct {
	logger zerolog.Logger
}

var _ LogProvider = zerologLogger{}

// Critical logs at zerolog's Fatal level without terminating the
// process; callers never get a crash from a logging call.
func (sf zerologLogger) Critical(format string, v ...interface{}) {
	sf.logger.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
}

func (sf zerologLogger) Error(format string, v ...interface{}) {
	sf.logger.Error().Msgf(format, v...)
}

func (sf zerologLogger) Warn(format string, v ...interface{}) {
	sf.logger.Warn().Msgf(format, v...)
}

func (sf zerologLogger) Debug(format string, v ...interface{}) {
	sf.logger.Debug().Msgf(format, v...)
}
