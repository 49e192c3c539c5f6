package timesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
)

// Exchanger performs one time-sync round trip with the robot.
type Exchanger interface {
	Exchange(ctx context.Context) (Sample, error)
}

// Keeper periodically exchanges time-sync samples and keeps an Estimator
// current. It satisfies the session collaborator used by the image converter.
type Keeper struct {
	exchanger Exchanger
	estimator *Estimator
	interval  time.Duration
	logger    *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	synced     chan struct{}
	syncedOnce sync.Once

	// Diagnostics
	mu         sync.Mutex
	exchanges  uint64
	errorCount uint64
	lastErr    error
}

// NewKeeper creates a keeper that runs one exchange per interval.
func NewKeeper(ex Exchanger, est *Estimator, interval time.Duration, logger *slog.Logger) *Keeper {
	if est == nil {
		est = NewEstimator(DefaultWindow)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		exchanger: ex,
		estimator: est,
		interval:  interval,
		logger:    logger.With("component", "timesync"),
		stop:      make(chan struct{}),
		synced:    make(chan struct{}),
	}
}

// Estimator returns the underlying estimator.
func (k *Keeper) Estimator() *Estimator {
	return k.estimator
}

// ClockSkew returns the latest skew estimate.
func (k *Keeper) ClockSkew() (*durationpb.Duration, error) {
	return k.estimator.ClockSkew()
}

// Run exchanges samples until ctx is done or Stop is called.
// The first exchange happens immediately.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stop:
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

func (k *Keeper) tick(ctx context.Context) {
	sample, err := k.exchanger.Exchange(ctx)
	if err == nil {
		err = k.estimator.Add(sample)
	}

	k.mu.Lock()
	k.exchanges++
	if err != nil {
		k.errorCount++
		k.lastErr = err
	}
	count, errs := k.exchanges, k.errorCount
	k.mu.Unlock()

	if err != nil {
		k.logger.Warn("time sync exchange failed", "error", err, "errors", errs)
		return
	}

	k.syncedOnce.Do(func() {
		close(k.synced)
		k.logger.Info("clock synchronized", "skew", sample.Skew(), "round_trip", sample.RoundTrip())
	})
	k.logger.Debug("time sync exchange", "exchanges", count, "skew", sample.Skew(), "round_trip", sample.RoundTrip())
}

// WaitForSync blocks until the first valid sample was recorded or ctx is done.
func (k *Keeper) WaitForSync(ctx context.Context) error {
	select {
	case <-k.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the exchange counters and the most recent error.
func (k *Keeper) Stats() (exchanges, errors uint64, lastErr error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.exchanges, k.errorCount, k.lastErr
}

// Stop halts Run. Safe to call more than once.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}
