// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/pkg/errutil"
)

// Delivery defaults.
const (
	DefaultMaxAttempts     = 3
	DefaultRetryBackoff    = time.Second
	DefaultDeliveryTimeout = 30 * time.Second
	maxRetryBackoff        = 30 * time.Second
)

// ErrClosed is returned by SendPasswordReset after Close.
var ErrClosed = errors.New("dispatcher closed")

// DeliveryObserver is told the outcome of every finished delivery.
type DeliveryObserver func(err error)

// Dispatcher implements auth.Notifier. Messages are rendered synchronously
// and delivered in the background so callers never wait on the mail provider.
type Dispatcher struct {
	renderer  *Renderer
	transport Transport
	logger    *slog.Logger
	observer  DeliveryObserver

	maxAttempts uint64
	backoff     time.Duration
	timeout     time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMaxAttempts bounds delivery attempts per message.
func WithMaxAttempts(n uint64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the first retry delay.
func WithRetryBackoff(backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// WithDeliveryTimeout bounds the total time spent on one message.
func WithDeliveryTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDeliveryObserver registers a callback run after each delivery.
func WithDeliveryObserver(observer DeliveryObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = observer }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(renderer *Renderer, transport Transport, opts ...DispatcherOption) (*Dispatcher, error) {
	if renderer == nil {
		return nil, oops.Code("NOTIFY_DISPATCHER_INVALID").Errorf("renderer is required")
	}
	if transport == nil {
		return nil, oops.Code("NOTIFY_DISPATCHER_INVALID").Errorf("transport is required")
	}
	d := &Dispatcher{
		renderer:    renderer,
		transport:   transport,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		timeout:     DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SendPasswordReset renders the reset email and queues it for delivery.
// Delivery errors are logged, never returned.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, recipientEmail, token string) error {
	msg, err := d.renderer.RenderPasswordReset(recipientEmail, token)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return oops.Code("NOTIFY_CLOSED").Wrap(ErrClosed)
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	// The request context ends when the HTTP response is written.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.inflight.Done()
		defer cancel()
		d.deliver(deliverCtx, msg)
	}()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	backoff := retry.NewExponential(d.backoff)
	backoff = retry.WithCappedDuration(maxRetryBackoff, backoff)
	backoff = retry.WithMaxRetries(d.maxAttempts-1, backoff)

	var attempt uint64
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := d.transport.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		d.logger.WarnContext(ctx, "email delivery attempt failed",
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"error", err.Error())
		return retry.RetryableError(err)
	})

	if d.observer != nil {
		d.observer(err)
	}
	if err != nil {
		errutil.LogError(d.logger, "email delivery failed",
			oops.Code("NOTIFY_DELIVERY_FAILED").
				With("attempts", attempt).
				With("subject", msg.Subject).
				Wrap(err))
		return
	}
	d.logger.InfoContext(ctx, "email delivered", "subject", msg.Subject, "attempts", attempt)
}

// Close stops accepting messages and waits for in-flight deliveries or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("NOTIFY_CLOSE_TIMEOUT").Wrap(ctx.Err())
	}
}

var _ auth.Notifier = (*Dispatcher)(nil)
