package spot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/teslashibe/go-spot/pkg/timesync"
)

// Session provides the current robot clock skew. The skew drifts, so it must
// be safe to call repeatedly and may return a different value each time.
type Session interface {
	ClockSkew() (*durationpb.Duration, error)
}

// ImageWithCameraInfo pairs a converted image with its calibration.
type ImageWithCameraInfo struct {
	Image *Image     `json:"image"`
	Info  CameraInfo `json:"camera_info"`
}

// BatchResult holds the converted images of one response batch.
// Sources that failed are absent from Images and listed in Failures.
type BatchResult struct {
	ID       uuid.UUID
	Skew     *durationpb.Duration
	Images   map[ImageSource]ImageWithCameraInfo
	Failures []*ItemFailure
}

// Sources returns the sources present in the batch.
func (b *BatchResult) Sources() []ImageSource {
	out := make([]ImageSource, 0, len(b.Images))
	for s := range b.Images {
		out = append(out, s)
	}
	return out
}

// Converter turns image responses into images and camera infos stamped in
// local time.
type Converter struct {
	session  Session
	resolver Resolver
	logger   *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithResolver sets the source name resolver. Defaults to DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(c *Converter) { c.resolver = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// NewConverter creates a converter reading clock skew from session.
func NewConverter(session Session, opts ...Option) *Converter {
	c := &Converter{
		session:  session,
		resolver: DefaultResolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Converter) clockSkew() (*durationpb.Duration, error) {
	if c.session == nil {
		return nil, ErrSkewUnavailable
	}
	skew, err := c.session.ClockSkew()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSkewUnavailable, err)
	}
	return skew, nil
}

// ConvertRobotTime converts a single robot timestamp to local time using a
// freshly fetched clock skew.
func (c *Converter) ConvertRobotTime(ts *timestamppb.Timestamp) (timesync.Time, error) {
	skew, err := c.clockSkew()
	if err != nil {
		return timesync.Time{}, err
	}
	return timesync.ApplyClockSkew(ts, skew), nil
}

// ConvertBatch converts every response in a batch.
//
// The clock skew is fetched once for the whole batch; if that fails no result
// is returned. Failures of individual responses are logged, recorded in
// BatchResult.Failures and do not affect the rest of the batch. When two
// responses resolve to the same source the first one is kept.
func (c *Converter) ConvertBatch(responses []ImageResponse) (*BatchResult, error) {
	skew, err := c.clockSkew()
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		ID:     uuid.New(),
		Skew:   skew,
		Images: make(map[ImageSource]ImageWithCameraInfo, len(responses)),
	}
	logger := c.logger.With("batch_id", result.ID.String())

	for i := range responses {
		resp := &responses[i]
		source, converted, stage, err := c.convert(resp, skew)
		if err == nil {
			if _, dup := result.Images[source]; dup {
				stage, err = StageInsert, fmt.Errorf("%w: %v", ErrDuplicateSource, source)
			}
		}
		if err != nil {
			failure := &ItemFailure{Index: i, SourceName: resp.Source.Name, Stage: stage, Err: err}
			result.Failures = append(result.Failures, failure)
			logger.Warn("dropping image from batch",
				"index", i,
				"source", resp.Source.Name,
				"stage", string(stage),
				"error", err)
			continue
		}
		result.Images[source] = converted
	}

	logger.Debug("converted image batch",
		"responses", len(responses),
		"images", len(result.Images),
		"failures", len(result.Failures))
	return result, nil
}

func (c *Converter) convert(resp *ImageResponse, skew *durationpb.Duration) (ImageSource, ImageWithCameraInfo, Stage, error) {
	shot := &resp.Shot
	header := Header{
		FrameID: shot.FrameNameImageSensor,
		Stamp:   timesync.ApplyClockSkew(shot.AcquisitionTime, skew),
	}

	layout, err := MapPixelFormat(shot.Image.PixelFormat)
	if err != nil {
		return ImageSource{}, ImageWithCameraInfo{}, StagePixelFormat, err
	}

	img, err := Decode(shot.Image.Data, shot.Image.Format, layout, int(shot.Image.Rows), int(shot.Image.Cols))
	if err != nil {
		return ImageSource{}, ImageWithCameraInfo{}, StageDecode, err
	}
	img.Header = header
	img.PixelFormat = shot.Image.PixelFormat

	info := BuildCameraInfo(resp.Intrinsics(), int(shot.Image.Rows), int(shot.Image.Cols), header.FrameID, header.Stamp)

	source, err := c.resolver.Resolve(resp.Source.Name)
	if err != nil {
		return ImageSource{}, ImageWithCameraInfo{}, StageResolve, err
	}

	return source, ImageWithCameraInfo{Image: img, Info: info}, "", nil
}

// Fetcher retrieves a batch of image responses from the robot.
type Fetcher interface {
	Fetch(ctx context.Context, requests []ImageRequest) ([]ImageResponse, error)
}

// Client requests images and converts them.
type Client struct {
	fetcher   Fetcher
	converter *Converter
}

// NewClient creates a client fetching through f and converting with conv.
func NewClient(f Fetcher, conv *Converter) *Client {
	return &Client{fetcher: f, converter: conv}
}

// Converter returns the client's converter.
func (c *Client) Converter() *Converter {
	return c.converter
}

// GetImages fetches the requested images and converts them. The clock skew is
// read after the response arrives so it is as fresh as possible.
func (c *Client) GetImages(ctx context.Context, requests []ImageRequest) (*BatchResult, error) {
	responses, err := c.fetcher.Fetch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("spot: get images: %w", err)
	}
	return c.converter.ConvertBatch(responses)
}
