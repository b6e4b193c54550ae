// Package live implements the command running the live camera pipeline.
package live

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/lensnet-go/internal/api"
	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/datastore"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/location"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/monitor"
	"github.com/tphakala/lensnet-go/internal/mqtt"
	"github.com/tphakala/lensnet-go/internal/notification"
	"github.com/tphakala/lensnet-go/internal/observability"
	"github.com/tphakala/lensnet-go/internal/pipeline"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
	"github.com/tphakala/lensnet-go/internal/telemetry"
)

const (
	busCloseTimeout = 5 * time.Second
	errorDedupTTL   = time.Minute
)

// Command creates the live command.
func Command(settings *conf.Settings, build buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run the live camera pipeline",
		Long:  "Capture frames from the configured camera, classify them continuously and serve the control API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the live command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("source", "", "Replay source directory with one subdirectory per camera")
	flags.String("listen", "", "Listen address of the control API")
	flags.Bool("telemetry", false, "Enable the Prometheus metrics endpoint")

	bindings := map[string]string{
		"camera.source":     "source",
		"api.listen":        "listen",
		"telemetry.enabled": "telemetry",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run wires the live pipeline to its consumers and blocks until ctx ends.
func Run(ctx context.Context, settings *conf.Settings, build buildinfo.BuildInfo) error {
	loader := inference.NewTFLiteLoader(settings.Model.Path, settings.Model.Threads, settings.Model.UseXNNPACK)
	driver := capture.NewReplayDriver(settings.Camera.Source, settings.Camera.FrameRate)
	return run(ctx, settings, build, loader, driver)
}

func run(ctx context.Context, settings *conf.Settings, build buildinfo.BuildInfo, loader inference.Loader, driver capture.Driver) error {
	log := logger.Global().Module("live")

	// components get resolved credentials; the settings store keeps the
	// references so they are never written back to the config file
	raw := settings
	settings, err := raw.ResolveSecrets()
	if err != nil {
		return err
	}

	flush, err := telemetry.Init(settings, build)
	if err != nil {
		return err
	}
	defer flush()

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	bus := events.New(events.Config{DedupTTL: errorDedupTTL})
	defer func() {
		if err := bus.Close(busCloseTimeout); err != nil {
			log.Warn("event bus did not drain", logger.Error(err))
		}
	}()

	camera, err := newCamera(raw, loader, driver, bus, m)
	if err != nil {
		return err
	}
	defer func() { _ = camera.Close() }()

	if err := camera.Setup(ctx); err != nil {
		return err
	}

	ds := openDatastore(settings, m)
	if ds != nil {
		defer func() { _ = ds.Close() }()
		consumer := datastore.NewConsumer(ds, settings.BestShot.Save, true)
		if err := bus.Subscribe(consumer, consumer.Kinds()...); err != nil {
			return err
		}
	}

	if settings.MQTT.Enabled {
		pub := newMQTTPublisher(settings, build, m)
		if err := pub.Start(ctx); err != nil {
			log.Warn("MQTT connection failed, continuing without publishing", logger.Error(err))
		} else {
			defer pub.Close()
			if err := bus.Subscribe(pub, mqtt.Kinds()...); err != nil {
				return err
			}
		}
	}

	if settings.Notification.Enabled {
		svc, err := notification.NewFromSettings(settings, m.Notification)
		if err != nil {
			return err
		}
		if err := bus.Subscribe(svc, notification.Kinds()...); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if settings.API.Enabled {
		opts := []api.ServerOption{
			api.WithCamera(camera),
			api.WithMetrics(m),
			api.WithBuildInfo(build),
		}
		if ds != nil {
			opts = append(opts, api.WithDataStore(ds))
		}
		srv, err := api.New(settings, opts...)
		if err != nil {
			return err
		}
		ctrl := srv.APIController()
		if err := bus.Subscribe(ctrl, ctrl.Kinds()...); err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if settings.Monitoring.Enabled {
		mon := monitor.New(settings, camera, monitor.WithPublisher(bus))
		g.Go(func() error { return mon.Run(gctx) })
	}

	if err := camera.Start(gctx); err != nil {
		return err
	}
	log.Info("live pipeline running",
		logger.String("version", build.Version()),
		logger.String("model", settings.Model.Type),
		logger.Bool("api", settings.API.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("datastore", ds != nil))

	g.Go(func() error {
		<-gctx.Done()
		camera.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("live pipeline stopped")
	return nil
}

func newCamera(settings *conf.Settings, loader inference.Loader, driver capture.Driver, bus *events.Bus, m *observability.Metrics) (*pipeline.LiveCamera, error) {
	cfg, err := pipeline.ConfigFromSettings(settings)
	if err != nil {
		return nil, err
	}

	adapter := inference.NewAdapter(loader, inference.Config{
		TopK:          settings.Model.TopK,
		MinConfidence: float32(settings.Model.MinConfidence),
	}, inference.WithMetrics(m.Inference))
	session := capture.NewSession(driver)

	opts := []pipeline.Option{
		pipeline.WithBus(bus),
		pipeline.WithMetrics(m),
		pipeline.WithStore(conf.NewStore(settings, viper.ConfigFileUsed())),
		// Face detection is an external collaborator; without a detector
		// the transform passes photos through unchanged.
		pipeline.WithFaceBlur(faceblur.New(nil, settings.Privacy.BlockSize)),
	}
	if settings.Location.Enabled {
		if static := location.NewStatic(settings.Location.Latitude, settings.Location.Longitude); static != nil {
			opts = append(opts,
				pipeline.WithLocation(static),
				pipeline.WithSunCalc(location.NewSunCalc(static.Coordinate)))
		}
	}
	return pipeline.New(cfg, session, adapter, opts...), nil
}

// openDatastore returns nil when no backend is configured or it cannot be
// opened; the pipeline runs without persistence in that case.
func openDatastore(settings *conf.Settings, m *observability.Metrics) *datastore.DataStore {
	log := logger.Global().Module("live")
	ds, err := datastore.New(settings, m.Datastore)
	if err != nil {
		if !errors.Is(err, datastore.ErrNoBackend) {
			log.Warn("datastore unavailable", logger.Error(err))
		}
		return nil
	}
	if err := ds.Open(); err != nil {
		log.Error("failed to open datastore, captures will not be saved", logger.Error(err))
		return nil
	}
	return ds
}

func newMQTTPublisher(settings *conf.Settings, build buildinfo.BuildInfo, m *observability.Metrics) *mqtt.Publisher {
	client := mqtt.NewClient(settings, m.MQTT)
	var opts []mqtt.PublisherOption
	if settings.MQTT.HomeAssistant.Discovery {
		opts = append(opts, mqtt.WithDiscovery(mqtt.NewDiscovery(client, mqtt.DiscoveryConfig{
			DiscoveryPrefix: settings.MQTT.HomeAssistant.Prefix,
			BaseTopic:       settings.MQTT.Topic,
			DeviceName:      settings.Main.Name,
			NodeID:          mqtt.SanitizeID(settings.Main.Name),
			Version:         build.Version(),
		})))
	}
	return mqtt.NewPublisher(client, settings, m.MQTT, opts...)
}
