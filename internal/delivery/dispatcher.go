package delivery

import (
	"context"
	"sync"
	"time"
)

// Dispatcher runs every submitted job on its own goroutine. Jobs do not
// wait for each other and each retries independently.
type Dispatcher[P any] struct {
	sender      *Sender[P]
	maxAttempts int
	retryDelay  time.Duration

	wg sync.WaitGroup

	mu   sync.Mutex
	last *Outcome
}

// NewDispatcher creates a Dispatcher that builds jobs with the given limits.
func NewDispatcher[P any](sender *Sender[P], maxAttempts int, retryDelay time.Duration) *Dispatcher[P] {
	return &Dispatcher[P]{sender: sender, maxAttempts: maxAttempts, retryDelay: retryDelay}
}

// Submit starts delivering payload in the background and returns the job ID.
func (d *Dispatcher[P]) Submit(ctx context.Context, payload P) string {
	job := NewJob(payload, d.maxAttempts, d.retryDelay)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		out := d.sender.Deliver(ctx, job)

		d.mu.Lock()
		d.last = &out
		d.mu.Unlock()
	}()
	return job.ID
}

// Last returns the outcome of the most recently finished job.
func (d *Dispatcher[P]) Last() (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Outcome{}, false
	}
	return *d.last, true
}

// Wait blocks until all submitted jobs have finished.
func (d *Dispatcher[P]) Wait() {
	d.wg.Wait()
}
