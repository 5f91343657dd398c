// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package resync

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/toeirei/gitkeeper/internal/logging"
	"github.com/toeirei/gitkeeper/internal/telemetry"
)

// OutboxEntry is an event waiting for delivery.
type OutboxEntry struct {
	ID        int64
	Event     Event
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Outbox is the persistent queue events are written to inside the
// credential transaction.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string) error
}

const (
	defaultBatchSize = 100
	defaultAttempts  = 3
	defaultDelay     = 500 * time.Millisecond
)

// Dispatcher moves events from the outbox to a Notifier in commit order.
type Dispatcher struct {
	outbox   Outbox
	notifier Notifier
	batch    int
	attempts uint
	delay    time.Duration
	wake     chan struct{}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBatchSize limits how many events one Flush reads.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

// WithAttempts sets how often a single delivery is tried within one Flush.
func WithAttempts(n uint, delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.attempts = n
		}
		if delay >= 0 {
			d.delay = delay
		}
	}
}

// NewDispatcher returns a Dispatcher reading from outbox and delivering to
// notifier.
func NewDispatcher(outbox Outbox, notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		outbox:   outbox,
		notifier: notifier,
		batch:    defaultBatchSize,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Flush delivers pending events in order and stops at the first event that
// cannot be delivered, so later events never overtake it. It returns the
// number of delivered events.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	entries, err := d.outbox.PendingEvents(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("read resync outbox: %w", err)
	}
	telemetry.ResyncPending.Set(float64(len(entries)))

	delivered := 0
	for _, entry := range entries {
		ev := entry.Event
		err := retry.Do(
			func() error { return d.notifier.Notify(ctx, ev) },
			retry.Attempts(d.attempts),
			retry.Delay(d.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			telemetry.ResyncDeliveriesTotal.WithLabelValues(string(ev.Command), "failed").Inc()
			logging.Errorf("resync: delivery of event %d (%s) failed after %d attempts: %v", entry.ID, ev, entry.Attempts+1, err)
			if markErr := d.outbox.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				logging.Errorf("resync: could not record failure of event %d: %v", entry.ID, markErr)
			}
			return delivered, fmt.Errorf("deliver resync event %d: %w", entry.ID, err)
		}
		if err := d.outbox.MarkDelivered(ctx, entry.ID); err != nil {
			// The event reached the notifier; it may be delivered again on the
			// next pass, which resync handles idempotently.
			return delivered, fmt.Errorf("mark resync event %d delivered: %w", entry.ID, err)
		}
		telemetry.ResyncDeliveriesTotal.WithLabelValues(string(ev.Command), "ok").Inc()
		logging.Debugf("resync: delivered event %d (%s)", entry.ID, ev)
		delivered++
	}
	telemetry.ResyncPending.Set(float64(len(entries) - delivered))
	return delivered, nil
}

// Kick asks a running Run loop to flush immediately. It never blocks.
func (d *Dispatcher) Kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run flushes the outbox every interval (and whenever Kick is called) until
// ctx is cancelled. Delivery failures are logged and retried on the next
// pass.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.flushSafely(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) flushSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("resync: recovered panic during flush: %v", r)
		}
	}()
	if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
		logging.Warnf("resync: %v", err)
	}
}
