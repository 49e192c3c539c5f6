package timesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var base = time.Unix(1700000000, 0)

// sampleWith builds a sample with the given robot offset and one-way delays.
func sampleWith(offset, out, back, processing time.Duration) Sample {
	clientTx := base
	serverRx := clientTx.Add(out).Add(offset)
	serverTx := serverRx.Add(processing)
	clientRx := serverTx.Add(-offset).Add(back)
	return Sample{ClientTx: clientTx, ServerRx: serverRx, ServerTx: serverTx, ClientRx: clientRx}
}

func TestSample_SymmetricDelay(t *testing.T) {
	s := sampleWith(3*time.Second, 10*time.Millisecond, 10*time.Millisecond, 2*time.Millisecond)

	if got := s.Skew(); got != 3*time.Second {
		t.Errorf("Skew() = %v, want 3s", got)
	}
	if got := s.RoundTrip(); got != 20*time.Millisecond {
		t.Errorf("RoundTrip() = %v, want 20ms", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestSample_ValidateRejectsBackwards(t *testing.T) {
	s := sampleWith(0, time.Millisecond, time.Millisecond, 0)
	s.ClientRx = s.ClientTx.Add(-time.Second)
	if err := s.Validate(); !errors.Is(err, ErrInvalidSample) {
		t.Errorf("Validate() = %v, want ErrInvalidSample", err)
	}
}

func TestEstimator_NotSynchronized(t *testing.T) {
	e := NewEstimator(0)
	if e.Synchronized() {
		t.Error("new estimator should not be synchronized")
	}
	if _, err := e.ClockSkew(); !errors.Is(err, ErrNotSynchronized) {
		t.Errorf("ClockSkew() err = %v, want ErrNotSynchronized", err)
	}
}

func TestEstimator_PicksMinimumRoundTrip(t *testing.T) {
	e := NewEstimator(10)

	// Asymmetric slow sample skews the estimate; the fast one should win.
	if err := e.Add(sampleWith(time.Second, 200*time.Millisecond, 10*time.Millisecond, 0)); err != nil {
		t.Fatal(err)
	}
	if err := e.Add(sampleWith(time.Second, time.Millisecond, time.Millisecond, 0)); err != nil {
		t.Fatal(err)
	}

	d, err := e.ClockSkew()
	if err != nil {
		t.Fatal(err)
	}
	if got := d.AsDuration(); got != time.Second {
		t.Errorf("skew = %v, want 1s", got)
	}
	if rt, ok := e.RoundTrip(); !ok || rt != 2*time.Millisecond {
		t.Errorf("RoundTrip() = %v, %v", rt, ok)
	}
}

func TestEstimator_WindowEvictsOldSamples(t *testing.T) {
	e := NewEstimator(2)

	_ = e.Add(sampleWith(time.Second, time.Millisecond, time.Millisecond, 0))
	_ = e.Add(sampleWith(2*time.Second, 5*time.Millisecond, 5*time.Millisecond, 0))
	_ = e.Add(sampleWith(3*time.Second, 4*time.Millisecond, 4*time.Millisecond, 0))

	d, _ := e.ClockSkew()
	if got := d.AsDuration(); got != 3*time.Second {
		t.Errorf("skew = %v, want 3s after first sample evicted", got)
	}
}

func TestStatic(t *testing.T) {
	d, err := Static{Skew: -1500 * time.Millisecond}.ClockSkew()
	if err != nil {
		t.Fatal(err)
	}
	if d.AsDuration() != -1500*time.Millisecond {
		t.Errorf("skew = %v", d.AsDuration())
	}
}

// mockExchanger returns queued samples, then errors.
type mockExchanger struct {
	mu      sync.Mutex
	samples []Sample
	calls   int
}

func (m *mockExchanger) Exchange(ctx context.Context) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.samples) == 0 {
		return Sample{}, errors.New("robot unreachable")
	}
	s := m.samples[0]
	m.samples = m.samples[1:]
	return s, nil
}

func TestKeeper_SynchronizesAndStops(t *testing.T) {
	ex := &mockExchanger{samples: []Sample{
		sampleWith(750*time.Millisecond, time.Millisecond, time.Millisecond, 0),
	}}
	k := NewKeeper(ex, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	if err := k.WaitForSync(ctx); err != nil {
		t.Fatalf("WaitForSync() = %v", err)
	}
	d, err := k.ClockSkew()
	if err != nil {
		t.Fatal(err)
	}
	if d.AsDuration() != 750*time.Millisecond {
		t.Errorf("skew = %v", d.AsDuration())
	}

	// Let a failing exchange happen, then stop.
	time.Sleep(20 * time.Millisecond)
	k.Stop()
	k.Stop()
	<-done

	exchanges, errs, lastErr := k.Stats()
	if exchanges < 2 || errs == 0 || lastErr == nil {
		t.Errorf("Stats() = %d, %d, %v", exchanges, errs, lastErr)
	}
	// The estimate survives failed exchanges.
	if _, err := k.ClockSkew(); err != nil {
		t.Errorf("ClockSkew() after failures = %v", err)
	}
}

func TestKeeper_WaitForSyncTimesOut(t *testing.T) {
	k := NewKeeper(&mockExchanger{}, nil, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := k.WaitForSync(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForSync() = %v, want deadline exceeded", err)
	}
}
