// Package worker hosts report runs on a bounded pool of workers, off the
// interactive control path of whatever frontend triggers them.
//
// The pool uses a semaphore pattern to cap concurrent runs. Each run's
// progress, terminal success and terminal failure travel one way, from the
// worker goroutine to the host, as ordered events on a channel. A run is
// never cancelled once started; it executes to completion or to its first
// fatal error.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ruptura/internal/report"
)

// ErrBusy is returned when all worker slots are occupied and the wait
// timeout expires. Callers should retry after a short delay.
var ErrBusy = errors.New("all report workers are busy, please try again later")

// DefaultMaxConcurrent is the default cap on simultaneous runs.
const DefaultMaxConcurrent = 2

// DefaultMaxWait is how long Start waits for a free slot before rejecting.
const DefaultMaxWait = 5 * time.Second

// Pool is a bounded worker pool for report runs.
type Pool struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewPool creates a pool allowing at most maxConcurrent simultaneous runs.
// Start calls that cannot acquire a slot within maxWait receive ErrBusy.
func NewPool(maxConcurrent int, maxWait time.Duration) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Pool{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Run is the unit of work a pool worker executes. It receives an emit
// function for progress events and returns the run's fatal error, if any.
type Run func(ctx context.Context, emit report.EventFunc) error

// Start executes run on a pool worker and returns its event stream. The
// stream carries the run's progress events in emission order, then exactly
// one terminal event (Done or Failed), and is closed. The caller must drain
// the channel.
func (p *Pool) Start(ctx context.Context, run Run) (<-chan report.Event, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	events := make(chan report.Event, 16)
	go func() {
		defer p.release()
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				events <- report.Event{
					Type:    report.EventFailed,
					Message: fmt.Sprintf("worker panic: %v", r),
					Err:     fmt.Errorf("worker panic: %v", r),
				}
			}
		}()

		err := run(ctx, func(ev report.Event) { events <- ev })
		if err != nil {
			events <- report.Event{Type: report.EventFailed, Message: err.Error(), Err: err}
			return
		}
		events <- report.Event{Type: report.EventDone}
	}()
	return events, nil
}

// acquire claims a worker slot, waiting up to maxWait.
func (p *Pool) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	select {
	case p.semaphore <- struct{}{}:
		p.mu.Lock()
		p.active++
		p.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
}

// release frees a previously acquired slot.
func (p *Pool) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	<-p.semaphore
}

// ActiveCount returns the number of runs currently executing.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// MaxConcurrent returns the pool's slot count.
func (p *Pool) MaxConcurrent() int { return cap(p.semaphore) }

// WaitForDrain blocks until all active runs complete or ctx is cancelled.
// Used for graceful shutdown.
func (p *Pool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
