package mapclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

const DefaultRefreshPeriod = time.Second

// Refresher runs a poll function on a fixed period while enabled. Each tick
// starts its poll on its own goroutine; slow polls are not waited for, so
// consecutive polls may overlap and the last one to finish wins.
type Refresher struct {
	period time.Duration
	poll   func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopLoop context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup

	ticks  atomic.Int64
	errors atomic.Int64
}

func NewRefresher(period time.Duration, poll func(context.Context) error) *Refresher {
	if period <= 0 {
		period = DefaultRefreshPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{period: period, poll: poll, ctx: ctx, cancel: cancel}
}

// SetEnabled starts or stops the timer. Polls already in flight finish on
// their own when the timer stops.
func (refresher *Refresher) SetEnabled(enabled bool) {
	refresher.mu.Lock()
	defer refresher.mu.Unlock()

	if enabled == (refresher.stopLoop != nil) {
		return
	}

	if !enabled {
		refresher.stopLoop()
		<-refresher.loopDone
		refresher.stopLoop = nil
		refresher.loopDone = nil
		glog.V(1).Info("auto refresh stopped")
		return
	}

	if refresher.ctx.Err() != nil {
		return
	}

	loopCtx, stop := context.WithCancel(refresher.ctx)
	refresher.stopLoop = stop
	refresher.loopDone = make(chan struct{})
	go refresher.loop(loopCtx, refresher.loopDone)
	glog.V(1).Infof("auto refresh started every %s", refresher.period)
}

func (refresher *Refresher) Enabled() bool {
	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	return refresher.stopLoop != nil
}

func (refresher *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(refresher.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresher.ticks.Add(1)
			refresher.inflight.Add(1)
			go func() {
				defer refresher.inflight.Done()
				if err := refresher.RefreshOnce(refresher.ctx); err != nil {
					glog.Warningf("refresh: %v", err)
				}
			}()
		}
	}
}

// RefreshOnce runs one poll cycle synchronously.
func (refresher *Refresher) RefreshOnce(ctx context.Context) error {
	err := refresher.poll(ctx)
	if err != nil {
		refresher.errors.Add(1)
	}
	return err
}

// Ticks counts timer-triggered poll cycles.
func (refresher *Refresher) Ticks() int64 {
	return refresher.ticks.Load()
}

func (refresher *Refresher) Errors() int64 {
	return refresher.errors.Load()
}

// Wait blocks until polls started by the timer have finished.
func (refresher *Refresher) Wait() {
	refresher.inflight.Wait()
}

// Close stops the timer, cancels in-flight polls and waits for them.
func (refresher *Refresher) Close() {
	refresher.SetEnabled(false)
	refresher.cancel()
	refresher.inflight.Wait()
}
