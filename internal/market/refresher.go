// Package market keeps the session's view of the dealer's markets and the chain's gas
// price current while the gateway runs.
package market

import (
	"context"
	"sync"
	"time"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

const (
	RetryBaseDelay = 1 * time.Second
	RetryMaxDelay  = 30 * time.Second
)

// Refreshable is satisfied by *service.Session.
type Refreshable interface {
	Refresh(ctx context.Context) (*model.NetworkContext, error)
}

// Refresher re-reads the network snapshot every interval and runs housekeeping jobs
// after each attempt. Failures back off exponentially up to RetryMaxDelay.
type Refresher struct {
	target   Refreshable
	interval time.Duration
	jobs     []func(ctx context.Context, now time.Time)

	mu       sync.RWMutex
	last     time.Time
	lastErr  error
	failures int

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewRefresher(target Refreshable, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		target:   target,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// AddJob registers fn to run after every refresh attempt. Call before Start.
func (r *Refresher) AddJob(fn func(ctx context.Context, now time.Time)) {
	r.jobs = append(r.jobs, fn)
}

// Start launches the loop in a background goroutine.
func (r *Refresher) Start() {
	r.started = true
	go r.runLoop()
}

// Stop ends the loop and waits for the current attempt to finish.
func (r *Refresher) Stop() {
	r.cancel()
	if r.started {
		<-r.done
	}
}

// Status reports the last successful refresh and the most recent error, if any.
func (r *Refresher) Status() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.lastErr
}

func (r *Refresher) runLoop() {
	defer close(r.done)
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(r.tick())
	}
}

// tick runs one refresh and the jobs, and returns the delay until the next one.
func (r *Refresher) tick() time.Duration {
	ctx, cancel := context.WithTimeout(r.ctx, r.interval)
	defer cancel()

	nc, err := r.target.Refresh(ctx)
	now := time.Now()
	for _, job := range r.jobs {
		job(ctx, now)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.lastErr = err
		r.failures++
		delay := RetryBaseDelay << min(r.failures-1, 5)
		if delay > RetryMaxDelay {
			delay = RetryMaxDelay
		}
		if delay > r.interval {
			delay = r.interval
		}
		logger.Error("session refresh failed", "error", err, "retry_in", delay)
		return delay
	}
	r.last = now
	r.lastErr = nil
	r.failures = 0
	logger.Debug("session refreshed", "gas_price", nc.GasPrice.String(), "pairs", len(nc.Pairs))
	return r.interval
}
