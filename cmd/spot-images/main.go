// spot-images polls a Spot robot for camera images, converts them to local
// time with calibration, and serves the latest batch over HTTP/websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-spot/internal/config"
	"github.com/teslashibe/go-spot/internal/log"
	"github.com/teslashibe/go-spot/pkg/driver"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	record := flag.String("record", "", "Append fetched image batches to this CBOR log")
	replay := flag.String("replay", "", "Replay image batches from this CBOR log instead of the robot")
	loop := flag.Bool("loop", false, "Restart the replay log at its end")
	debug := flag.Bool("debug", false, "Enable debug logging")
	hasArm := flag.Bool("has-arm", false, "Request hand camera images (overrides config)")
	noServer := flag.Bool("no-server", false, "Disable the HTTP/websocket server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "has-arm":
			cfg.Robot.HasArm = *hasArm
		case "no-server":
			cfg.Server.Enabled = !*noServer
		case "debug":
			if *debug {
				cfg.Log.Level = "debug"
			}
		}
	})

	log.Configure(cfg.Log.Level, cfg.Log.Format)
	logger := log.With("robot", cfg.Robot.Name)

	app, err := driver.New(cfg, driver.Options{RecordPath: *record, ReplayPath: *replay, Loop: *loop}, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := app.Run(ctx)
	app.Shutdown()
	if runErr != nil {
		logger.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
}
