package monitor

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures a SentryReporter.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
	// BeforeSend is passed straight to the sentry client.
	BeforeSend func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// SentryReporter sends captured errors to Sentry. With an empty DSN the
// client is still built but events go nowhere.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter builds a reporter with its own hub so it does not touch
// the sentry global state.
func NewSentryReporter(opts SentryOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		BeforeSend:  opts.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// CaptureError implements Reporter.
func (r *SentryReporter) CaptureError(err error, ev Event) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(ev.Tags)
		if len(ev.Extra) > 0 {
			scope.SetExtras(ev.Extra)
		}
		scope.SetLevel(sentryLevel(ev.Level))
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func sentryLevel(l Level) sentry.Level {
	switch l {
	case LevelWarning:
		return sentry.LevelWarning
	case LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelError
	}
}
