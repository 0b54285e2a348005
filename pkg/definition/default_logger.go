// Package definition provides the default, ready-to-use building blocks
// (logger, configuration) a caller needs to stand up a syncore.Repo
// without writing its own.
package definition

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/stitchsync/syncore/pkg/types"
)

// DefaultLogger adapts zerolog.Logger to the narrow types.Logger contract
// every core component depends on.
type DefaultLogger struct {
	logger zerolog.Logger
	debug  bool
}

// NewDefaultLogger builds a DefaultLogger writing leveled, structured lines
// to stderr.
func NewDefaultLogger(name string) *DefaultLogger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("component", name).
		Logger()
	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.logger.Info().Msg(sprint(v...))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.logger.Warn().Msg(sprint(v...))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.logger.Error().Msg(sprint(v...))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.logger.Debug().Msg(sprint(v...))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.logger.Debug().Msgf(format, v...)
	}
}

func (l *DefaultLogger) ToggleDebug(on bool) bool {
	l.debug = on
	return l.debug
}

func sprint(v ...interface{}) string {
	if len(v) == 1 {
		if s, ok := v[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(v...)
}

var _ types.Logger = (*DefaultLogger)(nil)
