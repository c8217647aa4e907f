// Package notify fans out Interested emails to the configured notification sinks.
// Delivery is advisory: errors are logged and counted, never returned.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailpipe/internal/analytics"
	"mailpipe/internal/models"
)

// Sink delivers one email to an external channel
type Sink interface {
	Name() string
	Send(ctx context.Context, email *models.Email) error
}

// Tracker receives delivery outcome events
type Tracker interface {
	Record(eventType string, metadata map[string]interface{})
}

// Result is the outcome of one sink delivery
type Result struct {
	Sink string `json:"sink"`
	Err  error  `json:"-"`
}

// Dispatcher is safe for concurrent use
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  zerolog.Logger
	tracker Tracker
}

// NewDispatcher creates a dispatcher over sinks. timeout bounds each delivery.
func NewDispatcher(sinks []Sink, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if len(sinks) == 0 {
		logger.Warn().Msg("No notification sinks configured")
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, logger: logger}
}

// WithTracker attaches an analytics tracker
func (d *Dispatcher) WithTracker(t Tracker) *Dispatcher {
	d.tracker = t
	return d
}

// SinkNames lists the configured sinks
func (d *Dispatcher) SinkNames() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify delivers an Interested email to every sink. Other categories are ignored.
func (d *Dispatcher) Notify(ctx context.Context, email *models.Email) {
	if email.Category != models.CategoryInterested {
		return
	}
	d.Dispatch(ctx, email)
}

// Dispatch attempts every sink concurrently and waits for all of them. A failing
// or panicking sink never prevents the others from being attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, email *models.Email) []Result {
	results := make([]Result, len(d.sinks))

	var wg sync.WaitGroup
	for i, sink := range d.sinks {
		wg.Add(1)
		go func(i int, sink Sink) {
			defer wg.Done()
			err := d.send(ctx, sink, email)
			results[i] = Result{Sink: sink.Name(), Err: err}
		}(i, sink)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, email *models.Email) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
		d.record(sink.Name(), email, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return sink.Send(ctx, email)
}

func (d *Dispatcher) record(sink string, email *models.Email, err error) {
	event := analytics.EventNotificationSent
	if err != nil {
		event = analytics.EventNotificationFailed
		d.logger.Error().Err(err).Str("sink", sink).Str("doc_id", email.Key()).Msg("Notification delivery failed")
	} else {
		d.logger.Info().Str("sink", sink).Str("doc_id", email.Key()).Msg("Notification sent")
	}

	if d.tracker != nil {
		d.tracker.Record(event, map[string]interface{}{
			"sink":       sink,
			"account_id": email.AccountID,
		})
	}
}
