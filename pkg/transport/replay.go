package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/teslashibe/go-spot/pkg/spot"
)

// ErrNoBatch is returned by Replay.ClockSkew before the first Fetch.
var ErrNoBatch = errors.New("transport: no batch replayed yet")

// Batch is one recorded GetImage response with the clock skew that was in
// effect when it arrived.
type Batch struct {
	Captured  time.Time            `cbor:"captured"`
	Skew      time.Duration        `cbor:"skew"`
	Responses []spot.ImageResponse `cbor:"responses"`
}

// Recorder appends batches to a CBOR log.
type Recorder struct {
	mu  sync.Mutex
	w   io.Writer
	enc *cbor.Encoder
	n   int
}

// recordMode keeps sub-second capture times.
var recordMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, enc: recordMode.NewEncoder(w)}
}

// Record writes one batch.
func (r *Recorder) Record(b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(b); err != nil {
		return fmt.Errorf("transport: record batch: %w", err)
	}
	r.n++
	return nil
}

// Count returns the number of batches recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close closes the underlying writer if it is an io.Closer.
func (r *Recorder) Close() error {
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SkewSource reports the skew to store with a recorded batch.
type SkewSource interface {
	ClockSkew() (*durationpb.Duration, error)
}

// Tee forwards fetches and records every successful batch.
type Tee struct {
	Fetcher  spot.Fetcher
	Recorder *Recorder
	Skew     SkewSource
}

// Fetch fetches from the wrapped fetcher and records the result. A batch
// whose skew is unavailable is still recorded, with zero skew.
func (t *Tee) Fetch(ctx context.Context, requests []spot.ImageRequest) ([]spot.ImageResponse, error) {
	responses, err := t.Fetcher.Fetch(ctx, requests)
	if err != nil {
		return nil, err
	}

	var skew time.Duration
	if t.Skew != nil {
		if d, err := t.Skew.ClockSkew(); err == nil {
			skew = d.AsDuration()
		}
	}
	if err := t.Recorder.Record(Batch{Captured: time.Now(), Skew: skew, Responses: responses}); err != nil {
		return nil, err
	}
	return responses, nil
}

// Replay serves recorded batches in order. It also acts as the session for
// the converter: ClockSkew returns the skew recorded with the batch most
// recently fetched.
type Replay struct {
	mu   sync.Mutex
	src  io.ReadSeeker
	dec  *cbor.Decoder
	loop bool
	last *Batch
}

// NewReplay reads batches from src. With loop set, the log restarts from the
// beginning after the last batch.
func NewReplay(src io.ReadSeeker, loop bool) *Replay {
	return &Replay{src: src, dec: cbor.NewDecoder(src), loop: loop}
}

// OpenReplay opens a recorded log file.
func OpenReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open replay: %w", err)
	}
	return NewReplay(f, loop), nil
}

// Fetch returns the next recorded batch, limited to the requested sources.
// An empty request list returns every response. io.EOF is returned at the
// end of a log that does not loop.
func (r *Replay) Fetch(ctx context.Context, requests []spot.ImageRequest) ([]spot.ImageResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.next()
	if err != nil {
		return nil, err
	}
	r.last = b

	if len(requests) == 0 {
		return b.Responses, nil
	}
	wanted := make(map[string]bool, len(requests))
	for _, req := range requests {
		wanted[req.SourceName] = true
	}
	out := make([]spot.ImageResponse, 0, len(b.Responses))
	for _, resp := range b.Responses {
		if wanted[resp.Source.Name] {
			out = append(out, resp)
		}
	}
	return out, nil
}

func (r *Replay) next() (*Batch, error) {
	var b Batch
	err := r.dec.Decode(&b)
	if errors.Is(err, io.EOF) && r.loop && r.last != nil {
		if _, err := r.src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("transport: rewind replay: %w", err)
		}
		r.dec = cbor.NewDecoder(r.src)
		err = r.dec.Decode(&b)
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("transport: read replay: %w", err)
	}
	return &b, nil
}

// ClockSkew returns the skew recorded with the last fetched batch.
func (r *Replay) ClockSkew() (*durationpb.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil, ErrNoBatch
	}
	return durationpb.New(r.last.Skew), nil
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Replay) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ spot.Fetcher = (*Replay)(nil)
	_ spot.Session = (*Replay)(nil)
	_ spot.Fetcher = (*Tee)(nil)
)
