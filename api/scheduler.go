/*
scheduler.go - Periodic snapshot freeze

PURPOSE:
  Runs a freeze pass on a fixed interval so each day is promoted into
  perfHistory shortly after the cutoff without anyone clicking anything.
  The pass itself is gated and idempotent (see floor/freeze.go), so ticking
  every minute all day is harmless: before the cutoff and after the day is
  frozen every tick is a cheap no-op.

DESIGN:
  - One background goroutine, started by Start and joined by Stop
  - Runs once immediately on start, then on every tick
  - A failed pass is logged and counted, and the next tick retries it
  - RunNow serves POST /admin/freeze and shares the same bookkeeping

USAGE:
  sched := NewFreezeScheduler(floor.NewFreezer(store, settings), log, jobs)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - floor/freeze.go: Freezer
  - metrics/metrics.go: Jobs
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/logger"
	"github.com/nbleicher/vc-dash-sub000/metrics"
)

const freezeJob = "freeze"

// FreezeRun records the outcome of one pass.
type FreezeRun struct {
	StartedAt time.Time          `json:"startedAt"`
	Duration  string             `json:"duration"`
	Result    floor.FreezeResult `json:"result"`
	Error     string             `json:"error,omitempty"`
}

// FreezeScheduler drives Freezer.Run on a ticker.
type FreezeScheduler struct {
	Freezer       *floor.Freezer
	CheckInterval time.Duration
	Enabled       bool

	log     *logger.Logger
	metrics *metrics.Jobs

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu       sync.Mutex
	lastRun  *FreezeRun
	lastTick time.Time
}

// NewFreezeScheduler creates a scheduler with a one minute interval.
func NewFreezeScheduler(f *floor.Freezer, log *logger.Logger, m *metrics.Jobs) *FreezeScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &FreezeScheduler{
		Freezer:       f,
		CheckInterval: time.Minute,
		Enabled:       true,
		log:           log,
		metrics:       m,
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (fs *FreezeScheduler) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ctx := fs.log.WithJob(context.Background(), freezeJob)
	if !fs.Enabled {
		fs.log.Info(ctx, "scheduler.disabled")
		return
	}
	if fs.ticker != nil {
		return
	}

	fs.ticker = time.NewTicker(fs.CheckInterval)
	fs.stop = make(chan struct{})
	fs.wg.Add(1)
	go fs.run(fs.ticker, fs.stop)

	fs.log.Info(fs.log.WithField(ctx, "interval", fs.CheckInterval.String()), "scheduler.started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (fs *FreezeScheduler) Stop() {
	fs.mu.Lock()
	if fs.ticker == nil {
		fs.mu.Unlock()
		return
	}
	fs.ticker.Stop()
	close(fs.stop)
	fs.ticker = nil
	fs.lastTick = time.Time{}
	fs.mu.Unlock()

	fs.wg.Wait()
	fs.log.Info(fs.log.WithJob(context.Background(), freezeJob), "scheduler.stopped")
}

func (fs *FreezeScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer fs.wg.Done()

	fs.tick(time.Now())
	for {
		select {
		case t := <-ticker.C:
			fs.tick(t)
		case <-stop:
			return
		}
	}
}

func (fs *FreezeScheduler) tick(t time.Time) {
	fs.mu.Lock()
	if fs.ticker != nil {
		fs.lastTick = t
	}
	fs.mu.Unlock()
	fs.RunNow(context.Background())
}

// RunNow performs one freeze pass and records it.
func (fs *FreezeScheduler) RunNow(ctx context.Context) (floor.FreezeResult, error) {
	ctx = fs.log.WithJob(ctx, freezeJob)
	start := time.Now()

	res, err := fs.Freezer.Run(ctx)
	elapsed := time.Since(start)
	fs.metrics.ObserveDuration(freezeJob, elapsed)

	run := FreezeRun{StartedAt: start.UTC(), Duration: elapsed.String(), Result: res}
	ctx = fs.log.WithFields(ctx, map[string]any{
		"date_key":    res.DateKey,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		run.Error = err.Error()
		fs.metrics.IncFailure(freezeJob)
		fs.log.Error(ctx, "freeze.failed", err)
	} else {
		fs.metrics.IncSuccess(freezeJob, string(res.Status))
		fs.metrics.AddRows(freezeJob, len(res.Rows))
		if res.Status == floor.FreezeFrozen {
			fs.log.Info(fs.log.WithField(ctx, "rows", len(res.Rows)), "freeze.completed")
		} else {
			fs.log.Debug(fs.log.WithField(ctx, "status", string(res.Status)), "freeze.skipped")
		}
	}

	fs.mu.Lock()
	fs.lastRun = &run
	fs.mu.Unlock()
	return res, err
}

// LastRun returns the most recent pass, if any.
func (fs *FreezeScheduler) LastRun() (FreezeRun, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.lastRun == nil {
		return FreezeRun{}, false
	}
	return *fs.lastRun, true
}

// NextRunTime returns when the next tick is due. ok is false while the
// scheduler is not running.
func (fs *FreezeScheduler) NextRunTime() (next time.Time, ok bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.ticker == nil || fs.lastTick.IsZero() {
		return time.Time{}, false
	}
	return fs.lastTick.Add(fs.CheckInterval), true
}
