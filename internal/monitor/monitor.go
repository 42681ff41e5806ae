// Package monitor reports permanent job failures to an error-monitoring
// backend.
package monitor

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the severity attached to a captured error.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Event carries the context sent along with a captured error.
type Event struct {
	Tags  map[string]string
	Extra map[string]any
	Level Level
}

// Reporter receives errors the queue could not recover from.
type Reporter interface {
	CaptureError(err error, ev Event)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) CaptureError(error, Event) {}

// LogReporter writes captured errors to the global zerolog logger.
type LogReporter struct{}

// CaptureError implements Reporter.
func (LogReporter) CaptureError(err error, ev Event) {
	var e *zerolog.Event
	switch ev.Level {
	case LevelWarning:
		e = log.Warn()
	case LevelFatal:
		// Fatal would exit the process; keep it at error.
		e = log.Error().Bool("fatal", true)
	default:
		e = log.Error()
	}

	for k, v := range ev.Tags {
		e = e.Str(k, v)
	}
	if len(ev.Extra) > 0 {
		e = e.Fields(ev.Extra)
	}
	e.Err(err).Msg("captured error")
}
