// Package delivery sends payloads through a transport with a bounded number
// of attempts and a fixed delay between them.
//
// A job with MaxAttempts N makes at most N-1 retried attempts followed by one
// final attempt whose result is the outcome. Errors wrapped with Fatal are
// never retried.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults shared by the notification nodes.
const (
	DefaultMaxAttempts = 10
	DefaultRetryDelay  = 50 * time.Second
)

// ErrExhausted wraps the last transport error once every attempt failed.
var ErrExhausted = errors.New("delivery: attempts exhausted")

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as a configuration failure that retrying cannot fix.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Fatalf is Fatal(fmt.Errorf(format, args...)).
func Fatalf(format string, args ...any) error {
	return Fatal(fmt.Errorf(format, args...))
}

// IsFatal reports whether err, or any error it wraps, was marked Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Transport sends one payload.
type Transport[P any] interface {
	Send(ctx context.Context, payload P) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc[P any] func(ctx context.Context, payload P) error

// Send calls f.
func (f TransportFunc[P]) Send(ctx context.Context, payload P) error {
	return f(ctx, payload)
}

// Job is one payload to deliver.
type Job[P any] struct {
	ID          string
	Payload     P
	MaxAttempts int
	RetryDelay  time.Duration
}

// NewJob creates a job with a fresh ID. Non-positive limits take the
// package defaults.
func NewJob[P any](payload P, maxAttempts int, retryDelay time.Duration) Job[P] {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryDelay < 0 {
		retryDelay = DefaultRetryDelay
	}
	return Job[P]{
		ID:          uuid.NewString(),
		Payload:     payload,
		MaxAttempts: maxAttempts,
		RetryDelay:  retryDelay,
	}
}

// Outcome is the result of a delivery job.
type Outcome struct {
	JobID     string
	Attempts  int
	Delivered bool
	Err       error
}

// Outputs receives the job result. *node.Context satisfies it.
type Outputs interface {
	SignalError(msg string)
	ClearError()
}

// Recorder counts attempts and outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	DeliveryAttempt(node string, ok bool)
	DeliveryOutcome(node string, delivered bool)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config configures a Sender.
type Config[P any] struct {
	// Name labels logs and metrics.
	Name      string
	Transport Transport[P]
	// Outputs, if set, receives the error state after every job.
	Outputs Outputs
	Sleep   SleepFunc
	Logger  zerolog.Logger
	Metrics Recorder
}

// Sender delivers jobs over a single transport.
type Sender[P any] struct {
	name      string
	transport Transport[P]
	outputs   Outputs
	sleep     SleepFunc
	log       zerolog.Logger
	metrics   Recorder
}

// NewSender creates a Sender.
func NewSender[P any](cfg Config[P]) *Sender[P] {
	s := &Sender[P]{
		name:      cfg.Name,
		transport: cfg.Transport,
		outputs:   cfg.Outputs,
		sleep:     cfg.Sleep,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	return s
}

// Deliver runs job to completion. Delivery failures are reported in the
// Outcome, and on the configured outputs, never as a panic or separate
// error return.
func (s *Sender[P]) Deliver(ctx context.Context, job Job[P]) Outcome {
	out := s.deliver(ctx, job)

	if s.metrics != nil {
		s.metrics.DeliveryOutcome(s.name, out.Delivered)
	}
	if out.Delivered {
		s.log.Debug().Str("job", out.JobID).Int("attempts", out.Attempts).Msg("delivered")
		if s.outputs != nil {
			s.outputs.ClearError()
		}
		return out
	}

	s.log.Error().Err(out.Err).Str("job", out.JobID).Int("attempts", out.Attempts).Msg("delivery failed")
	if s.outputs != nil {
		s.outputs.SignalError(out.Err.Error())
	}
	return out
}

func (s *Sender[P]) deliver(ctx context.Context, job Job[P]) Outcome {
	out := Outcome{JobID: job.ID}
	if s.transport == nil {
		out.Err = Fatal(errors.New("delivery: no transport configured"))
		return out
	}

	attempts := job.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			if err := s.sleep(ctx, job.RetryDelay); err != nil {
				out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, out.Attempts, lastErr)
				return out
			}
		}

		out.Attempts = i
		lastErr = s.transport.Send(ctx, job.Payload)
		if s.metrics != nil {
			s.metrics.DeliveryAttempt(s.name, lastErr == nil)
		}
		if lastErr == nil {
			out.Delivered = true
			return out
		}

		if IsFatal(lastErr) {
			out.Err = lastErr
			return out
		}
		s.log.Warn().Err(lastErr).Str("job", job.ID).Int("attempt", i).Int("of", attempts).Msg("send attempt failed")
	}

	out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, out.Attempts, lastErr)
	return out
}
