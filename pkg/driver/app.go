// Package driver wires the image pipeline together: it polls the robot (or a
// recorded log) for images, converts them and publishes the results.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-spot/internal/config"
	"github.com/teslashibe/go-spot/internal/httpc"
	"github.com/teslashibe/go-spot/pkg/spot"
	"github.com/teslashibe/go-spot/pkg/timesync"
	"github.com/teslashibe/go-spot/pkg/transport"
	"github.com/teslashibe/go-spot/pkg/web"
)

// Options selects where images come from and whether they are recorded.
type Options struct {
	RecordPath string // append fetched batches to this CBOR log
	ReplayPath string // read batches from this CBOR log instead of the robot
	Loop       bool   // restart the replay log at its end
}

// App is the image driver.
type App struct {
	config *config.Config
	opts   Options
	logger *slog.Logger

	requests []spot.ImageRequest
	client   *spot.Client
	keeper   *timesync.Keeper
	replay   *transport.Replay
	recorder *transport.Recorder
	server   *web.Server

	// OnBatch is called with every converted batch, after it is published.
	OnBatch func(*spot.BatchResult)

	batches  atomic.Uint64
	failures atomic.Uint64
}

// New creates an app. cfg must already be validated.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("driver: nil config")
	}
	if opts.RecordPath != "" && opts.RecordPath == opts.ReplayPath {
		return nil, errors.New("driver: cannot record to the replay log")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config:   cfg,
		opts:     opts,
		logger:   logger,
		requests: cfg.ImageRequests(),
	}, nil
}

// Init builds the transport, time sync, converter and server.
// Call this after New() and before Run().
func (a *App) Init() error {
	var (
		fetcher spot.Fetcher
		session spot.Session
	)

	switch {
	case a.opts.ReplayPath != "":
		r, err := transport.OpenReplay(a.opts.ReplayPath, a.opts.Loop)
		if err != nil {
			return err
		}
		a.replay = r
		fetcher, session = r, r
		a.logger.Info("replaying images", "path", a.opts.ReplayPath, "loop", a.opts.Loop)

	default:
		gw := transport.NewGateway(a.config.Robot.GatewayURL, httpc.NewClient(a.config.Robot.Timeout.Std()))
		fetcher = gw
		if skew := a.config.TimeSync.StaticSkew; skew != nil {
			session = timesync.Static{Skew: skew.Std()}
			a.logger.Info("using static clock skew", "skew", skew.Std())
		} else {
			est := timesync.NewEstimator(a.config.TimeSync.Window)
			a.keeper = timesync.NewKeeper(gw, est, a.config.TimeSync.Interval.Std(), a.logger)
			session = a.keeper
		}
		a.logger.Info("polling robot", "gateway", a.config.Robot.GatewayURL, "sources", len(a.requests))
	}

	if a.opts.RecordPath != "" {
		f, err := os.OpenFile(a.opts.RecordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("driver: open record log: %w", err)
		}
		a.recorder = transport.NewRecorder(f)
		fetcher = &transport.Tee{Fetcher: fetcher, Recorder: a.recorder, Skew: session}
		a.logger.Info("recording images", "path", a.opts.RecordPath)
	}

	conv := spot.NewConverter(session, spot.WithLogger(a.logger.With("component", "converter")))
	a.client = spot.NewClient(fetcher, conv)

	if a.config.Server.Enabled {
		opts := []web.Option{
			web.WithLogger(a.logger),
			web.WithPreviewQuality(a.config.Server.PreviewQuality),
		}
		if a.keeper != nil {
			opts = append(opts, web.WithSyncState(a.keeper.Estimator().Synchronized))
		}
		a.server = web.NewServer(a.config.Server.Port, opts...)
	}
	return nil
}

// Run polls for images until ctx is cancelled or a non-looping replay ends.
func (a *App) Run(ctx context.Context) error {
	if a.client == nil {
		return errors.New("driver: Run before Init")
	}
	if a.keeper != nil {
		go a.keeper.Run(ctx)
	}
	if a.server != nil {
		a.server.StartAsync()
	}

	ticker := time.NewTicker(a.config.Images.Interval.Std())
	defer ticker.Stop()

	for {
		if err := a.poll(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Info("replay finished", "batches", a.batches.Load())
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll runs one request. Only io.EOF from a replay and context cancellation
// are returned; other failures are logged and the next poll retries.
func (a *App) poll(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, a.config.Robot.Timeout.Std())
	defer cancel()

	batch, err := a.client.GetImages(reqCtx, a.requests)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return io.EOF
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, spot.ErrSkewUnavailable):
		a.logger.Debug("waiting for clock sync", "error", err)
		return nil
	default:
		a.logger.Warn("image request failed", "error", err)
		return nil
	}

	a.batches.Add(1)
	a.failures.Add(uint64(len(batch.Failures)))
	if a.server != nil {
		a.server.Publish(batch)
	}
	if a.OnBatch != nil {
		a.OnBatch(batch)
	}
	return nil
}

// Stats returns the number of batches converted and items dropped.
func (a *App) Stats() (batches, failures uint64) {
	return a.batches.Load(), a.failures.Load()
}

// Server returns the publishing server, or nil when it is disabled.
func (a *App) Server() *web.Server {
	return a.server
}

// Shutdown stops every component.
func (a *App) Shutdown() {
	if a.keeper != nil {
		a.keeper.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.logger.Warn("server shutdown", "error", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("close record log", "error", err)
		}
		a.logger.Info("recorded batches", "count", a.recorder.Count())
	}
	if a.replay != nil {
		a.replay.Close()
	}
	batches, failures := a.Stats()
	a.logger.Info("image driver stopped", "batches", batches, "failures", failures)
}
