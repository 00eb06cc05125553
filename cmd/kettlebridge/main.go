// Kettle Bridge
//
// This is the main entry point for the kettle bridge. It connects a Fellow
// Stagg EKG+ kettle (Bluetooth LE) and an FSR fill-level sensor (GPIO) to an
// MQTT broker:
//   - kettle state is published under fellow/kettle/status/*
//   - commands on fellow/kettle/action/* are applied to the kettle
//   - an optional HTTP status API mirrors what was last published
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/kettle-bridge/internal/api"
	"github.com/nerrad567/kettle-bridge/internal/bridges/kettlebridge"
	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/kettle-bridge/internal/kettle"
	"github.com/nerrad567/kettle-bridge/internal/kettle/stagg"
	"github.com/nerrad567/kettle-bridge/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancels on Ctrl+C and SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hardware holds the device-facing dependencies, so serve can run against
// fakes in tests.
type hardware struct {
	discoverer kettle.Discoverer

	// sampler is nil when the FSR is disabled or its GPIO line could not be
	// opened.
	sampler *fsr.Sampler
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting kettle bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", cfg.Source,
		"level", cfg.Logging.Level,
		"kettle", cfg.Kettle.MACAddress,
	)

	sampler, closeFSR := openFSR(cfg, log)
	defer closeFSR()

	hw := hardware{
		discoverer: stagg.NewDiscoverer(bluetooth.DefaultAdapter, log.Component("stagg")),
		sampler:    sampler,
	}

	return serve(ctx, cfg, log, hw)
}

// serve wires the bridge together and runs its loops until ctx is cancelled.
//
// The publish loop, command loop and sampler run as one errgroup. A sampler
// failure is logged and the bridge carries on without fill level. The command
// loop is retried with backoff when it cannot connect or subscribe.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger, hw hardware) error {
	thresholds, err := kettle.ThresholdsFromConfig(cfg.FSR.FillLevels)
	if err != nil {
		return fmt.Errorf("fill level table: %w", err)
	}

	var source kettle.IntervalSource
	if hw.sampler != nil {
		source = hw.sampler
	}
	classifier := kettle.NewClassifier(source, thresholds)

	sessions := kettle.NewSessionManager(hw.discoverer, kettle.SessionOptions{
		MACAddress:     cfg.Kettle.MACAddress,
		ConnectTimeout: cfg.GetConnectTimeout(),
		Logger:         log.Component("kettle"),
	})
	defer func() {
		log.Info("disconnecting kettle")
		if closeErr := sessions.Close(); closeErr != nil {
			log.Error("error disconnecting kettle", "error", closeErr)
		}
	}()

	transport := mqtt.NewTransport(cfg.MQTT, log.Component("mqtt"))

	var hub *api.Hub
	var observer kettlebridge.StateObserver
	if cfg.API.Enabled {
		hub = api.NewHub(log.Component("api"))
		observer = hub
	}

	bridge, err := kettlebridge.NewBridge(kettlebridge.BridgeOptions{
		Sessions:     sessions,
		Publisher:    transport,
		Subscriber:   transport,
		FillLevel:    classifier,
		PollInterval: cfg.GetPollInterval(),
		Observer:     observer,
		Logger:       log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// paho reconnects a dropped subscribe session by itself, so the command
	// loop only returns early when the broker cannot be reached or refuses
	// the subscription. Retry that with the configured reconnect backoff.
	commandLoop := process.NewSupervisor(process.Config{
		Name:             "command-loop",
		RestartOnFailure: true,
		RestartDelay:     time.Duration(cfg.MQTT.Reconnect.InitialDelay) * time.Second,
		MaxRestartDelay:  time.Duration(cfg.MQTT.Reconnect.MaxDelay) * time.Second,
	})
	commandLoop.SetLogger(log.Component("process"))

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  bridge,
			Session: sessions,
			Hub:     hub,
			Loops:   []api.LoopStats{commandLoop},
			Version: version,
		}
		if hw.sampler != nil {
			deps.Sampler = hw.sampler
		}

		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if hw.sampler != nil {
		g.Go(func() error {
			if runErr := hw.sampler.Run(gctx); runErr != nil {
				log.Error("fill level sampler stopped, fill level will not be published", "error", runErr)
			}
			return nil
		})
	}
	g.Go(func() error { return bridge.RunPublishLoop(gctx) })
	g.Go(func() error { return commandLoop.Run(gctx, bridge.RunCommandLoop) })

	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"poll_interval", cfg.GetPollInterval(),
	)

	err = g.Wait()
	if cleanExit(ctx, err) {
		log.Info("kettle bridge stopped")
		return nil
	}
	return err
}

// openFSR requests the sensor line and builds a sampler around it. An
// unavailable line is logged and yields a nil sampler; the kettle side keeps
// working without fill level.
func openFSR(cfg *config.Config, log *logging.Logger) (*fsr.Sampler, func()) {
	noop := func() {}

	if !cfg.FSR.Enabled {
		log.Info("fill level sensor disabled")
		return nil, noop
	}

	gpio, err := fsr.NewChipGPIO(cfg.FSR.Chip, cfg.FSR.Pin)
	if err != nil {
		log.Warn("fill level sensor unavailable, fill level will not be published",
			"chip", cfg.FSR.Chip,
			"pin", cfg.FSR.Pin,
			"error", err,
		)
		return nil, noop
	}

	sampler := fsr.NewSampler(gpio, fsr.SamplerOptions{
		SettleDelay: cfg.GetSettleDelay(),
		Logger:      log.Component("fsr"),
	})

	return sampler, func() {
		if cancelErr := sampler.Cancel(); cancelErr != nil {
			log.Warn("error cancelling fill level sampler", "error", cancelErr)
		}
		if closeErr := gpio.Close(); closeErr != nil {
			log.Warn("error releasing GPIO line", "error", closeErr)
		}
	}
}

// cleanExit reports whether err is nil or only the cancellation of ctx.
func cleanExit(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// getConfigPath returns the configuration file path.
// Uses KETTLEBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KETTLEBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
