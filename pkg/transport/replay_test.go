package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/teslashibe/go-spot/pkg/spot"
)

func testResponse(name string, sec int64) spot.ImageResponse {
	return spot.ImageResponse{
		Source: spot.ImageSourceInfo{Name: name, Rows: 1, Cols: 2},
		Shot: spot.ImageCapture{
			Image: spot.RawImage{
				Rows: 1, Cols: 2,
				Data:        []byte{0x10, 0x00, 0x20, 0x00},
				Format:      spot.FormatRaw,
				PixelFormat: spot.PixelFormatDepthU16,
			},
			AcquisitionTime: &timestamppb.Timestamp{Seconds: sec, Nanos: 42},
		},
	}
}

type staticFetcher struct {
	responses []spot.ImageResponse
	err       error
}

func (f *staticFetcher) Fetch(ctx context.Context, _ []spot.ImageRequest) ([]spot.ImageResponse, error) {
	return f.responses, f.err
}

func recordBatches(t *testing.T, batches ...Batch) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	for _, b := range batches {
		if err := rec.Record(b); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if rec.Count() != len(batches) {
		t.Fatalf("Count() = %d, want %d", rec.Count(), len(batches))
	}
	return bytes.NewReader(buf.Bytes())
}

func TestReplay_RoundTrip(t *testing.T) {
	captured := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	src := recordBatches(t,
		Batch{Captured: captured, Skew: 1500 * time.Millisecond, Responses: []spot.ImageResponse{
			testResponse("back_depth", 10), testResponse("left_depth", 11),
		}},
		Batch{Captured: captured.Add(time.Second), Skew: -2 * time.Second, Responses: []spot.ImageResponse{
			testResponse("back_depth", 12),
		}},
	)

	r := NewReplay(src, false)
	ctx := context.Background()

	if _, err := r.ClockSkew(); !errors.Is(err, ErrNoBatch) {
		t.Errorf("ClockSkew() before fetch = %v, want ErrNoBatch", err)
	}

	resps, err := r.Fetch(ctx, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	got := resps[1]
	if got.Source.Name != "left_depth" || got.Shot.AcquisitionTime.GetSeconds() != 11 || got.Shot.AcquisitionTime.GetNanos() != 42 {
		t.Errorf("response = %+v", got)
	}
	if !bytes.Equal(got.Shot.Image.Data, []byte{0x10, 0x00, 0x20, 0x00}) {
		t.Errorf("data = %v", got.Shot.Image.Data)
	}
	if got.Shot.Image.PixelFormat != spot.PixelFormatDepthU16 {
		t.Errorf("pixel format = %v", got.Shot.Image.PixelFormat)
	}

	skew, err := r.ClockSkew()
	if err != nil || skew.AsDuration() != 1500*time.Millisecond {
		t.Errorf("ClockSkew() = %v, %v", skew, err)
	}

	if _, err := r.Fetch(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if skew, _ := r.ClockSkew(); skew.AsDuration() != -2*time.Second {
		t.Errorf("ClockSkew() = %v, want -2s", skew.AsDuration())
	}

	if _, err := r.Fetch(ctx, nil); !errors.Is(err, io.EOF) {
		t.Errorf("Fetch() past end = %v, want io.EOF", err)
	}
}

func TestReplay_FiltersRequests(t *testing.T) {
	src := recordBatches(t, Batch{Responses: []spot.ImageResponse{
		testResponse("back_depth", 1), testResponse("left_depth", 1),
	}})

	r := NewReplay(src, false)
	resps, err := r.Fetch(context.Background(), []spot.ImageRequest{{SourceName: "left_depth"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resps) != 1 || resps[0].Source.Name != "left_depth" {
		t.Errorf("responses = %+v", resps)
	}
}

func TestReplay_Loop(t *testing.T) {
	src := recordBatches(t,
		Batch{Responses: []spot.ImageResponse{testResponse("back_depth", 1)}},
		Batch{Responses: []spot.ImageResponse{testResponse("back_depth", 2)}},
	)

	r := NewReplay(src, true)
	want := []int64{1, 2, 1, 2, 1}
	for i, sec := range want {
		resps, err := r.Fetch(context.Background(), nil)
		if err != nil {
			t.Fatalf("Fetch() #%d error = %v", i, err)
		}
		if got := resps[0].Shot.AcquisitionTime.GetSeconds(); got != sec {
			t.Errorf("Fetch() #%d seconds = %d, want %d", i, got, sec)
		}
	}
}

func TestReplay_EmptyLoopEndsWithEOF(t *testing.T) {
	r := NewReplay(bytes.NewReader(nil), true)
	if _, err := r.Fetch(context.Background(), nil); !errors.Is(err, io.EOF) {
		t.Errorf("Fetch() = %v, want io.EOF", err)
	}
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReplay(bytes.NewReader(nil), false)
	if _, err := r.Fetch(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() = %v, want context.Canceled", err)
	}
}

func TestTee_RecordsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.cbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	rec := NewRecorder(f)
	tee := &Tee{
		Fetcher:  &staticFetcher{responses: []spot.ImageResponse{testResponse("right_depth", 7)}},
		Recorder: rec,
		Skew:     &Replay{last: &Batch{Skew: 250 * time.Millisecond}},
	}
	if _, err := tee.Fetch(context.Background(), nil); err != nil {
		t.Fatalf("Tee.Fetch() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenReplay(path, false)
	if err != nil {
		t.Fatalf("OpenReplay() error = %v", err)
	}
	defer r.Close()

	resps, err := r.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resps) != 1 || resps[0].Source.Name != "right_depth" {
		t.Errorf("responses = %+v", resps)
	}
	if skew, _ := r.ClockSkew(); skew.AsDuration() != 250*time.Millisecond {
		t.Errorf("ClockSkew() = %v", skew.AsDuration())
	}
}

func TestTee_FetchErrorNotRecorded(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	tee := &Tee{Fetcher: &staticFetcher{err: errors.New("robot offline")}, Recorder: rec}

	if _, err := tee.Fetch(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if rec.Count() != 0 || buf.Len() != 0 {
		t.Errorf("failed fetch was recorded")
	}
}
