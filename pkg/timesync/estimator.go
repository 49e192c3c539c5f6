package timesync

import (
	"errors"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
)

// DefaultWindow is the number of recent samples an Estimator considers.
const DefaultWindow = 25

var (
	// ErrNotSynchronized is returned before any valid sample was recorded.
	ErrNotSynchronized = errors.New("timesync: clock not synchronized")

	// ErrInvalidSample is returned for samples whose timestamps are out of order.
	ErrInvalidSample = errors.New("timesync: invalid sample")
)

// Sample is one round-trip exchange with the robot.
// Client times are read from the local clock, server times from the robot's.
type Sample struct {
	ClientTx time.Time `json:"client_tx" cbor:"client_tx"`
	ServerRx time.Time `json:"server_rx" cbor:"server_rx"`
	ServerTx time.Time `json:"server_tx" cbor:"server_tx"`
	ClientRx time.Time `json:"client_rx" cbor:"client_rx"`
}

// RoundTrip is the time spent on the wire, excluding robot processing time.
func (s Sample) RoundTrip() time.Duration {
	return s.ClientRx.Sub(s.ClientTx) - s.ServerTx.Sub(s.ServerRx)
}

// Skew is the estimated robot clock offset (robot - local) for this sample.
func (s Sample) Skew() time.Duration {
	return (s.ServerRx.Sub(s.ClientTx) + s.ServerTx.Sub(s.ClientRx)) / 2
}

// Validate checks that both clocks moved forward during the exchange.
func (s Sample) Validate() error {
	if s.ClientRx.Before(s.ClientTx) || s.ServerTx.Before(s.ServerRx) {
		return ErrInvalidSample
	}
	if s.RoundTrip() < 0 {
		return ErrInvalidSample
	}
	return nil
}

// Estimator tracks clock skew from a sliding window of samples. The sample
// with the smallest round trip in the window wins, since it bounds the
// asymmetric network delay most tightly.
type Estimator struct {
	mu      sync.RWMutex
	window  int
	samples []Sample
	best    *Sample
}

// NewEstimator creates an estimator over the last window samples.
// A non-positive window uses DefaultWindow.
func NewEstimator(window int) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{
		window:  window,
		samples: make([]Sample, 0, window),
	}
}

// Add records a sample and recomputes the best estimate.
func (e *Estimator) Add(s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, s)
	if len(e.samples) > e.window {
		e.samples = e.samples[1:]
	}

	best := e.samples[0]
	for _, c := range e.samples[1:] {
		if c.RoundTrip() < best.RoundTrip() {
			best = c
		}
	}
	e.best = &best
	return nil
}

// Synchronized reports whether at least one sample has been recorded.
func (e *Estimator) Synchronized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best != nil
}

// RoundTrip returns the round trip of the sample backing the current estimate.
func (e *Estimator) RoundTrip() (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.best == nil {
		return 0, false
	}
	return e.best.RoundTrip(), true
}

// ClockSkew returns the current skew estimate. Every call reflects the
// latest window, so callers converting a batch should fetch it once per batch.
func (e *Estimator) ClockSkew() (*durationpb.Duration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.best == nil {
		return nil, ErrNotSynchronized
	}
	return durationpb.New(e.best.Skew()), nil
}

// Static is a fixed skew. Useful for replaying recorded batches.
type Static struct {
	Skew time.Duration
}

// ClockSkew returns the fixed skew.
func (s Static) ClockSkew() (*durationpb.Duration, error) {
	return durationpb.New(s.Skew), nil
}
