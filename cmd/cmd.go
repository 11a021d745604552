package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/anicoll/homgar-integration/internal/pkg/cache"
	"github.com/anicoll/homgar-integration/internal/pkg/config"
	"github.com/anicoll/homgar-integration/internal/pkg/database"
	"github.com/anicoll/homgar-integration/internal/pkg/database/migration"
	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
	"github.com/anicoll/homgar-integration/internal/pkg/metrics"
	"github.com/anicoll/homgar-integration/internal/pkg/model"
	"github.com/anicoll/homgar-integration/internal/pkg/mqtt"
	"github.com/anicoll/homgar-integration/internal/pkg/poller"
	"github.com/anicoll/homgar-integration/internal/pkg/publisher"
	"github.com/anicoll/homgar-integration/internal/pkg/server"
)

const requestBurst = 5

// HomgarCommand is the main entry point for the homgar integration CLI command.
// It validates configuration and starts all required services.
func HomgarCommand(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if ctx.IsSet("cache") {
		cfg.HomgarCfg.CacheFile = ctx.String("cache")
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	store, err := cache.New(cfg.HomgarCfg.CacheFile)
	if err != nil {
		return err
	}
	logger.Debug("using session cache", zap.String("path", store.Path()))

	reg := prometheus.NewRegistry()
	pollSvc := newPoller(cfg.HomgarCfg, store, metrics.New(reg), logger)

	if ctx.Bool("once") {
		return runOnce(ctx.Context, pollSvc, os.Stdout)
	}

	var db *database.Database
	if cfg.DBCfg.URL != "" {
		if db, err = openDatabase(ctx.Context, cfg.DBCfg); err != nil {
			return err
		}
		defer db.Close()
		if err := publisher.RegisterPublisher("postgres", db); err != nil {
			return err
		}
	}

	if cfg.MqttCfg.Host != "" {
		mqttSvc := mqtt.New(mqtt.NewClient(cfg.MqttCfg.Host, cfg.MqttCfg.Username, cfg.MqttCfg.Password))
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		if err := publisher.RegisterPublisher("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	srvOpts := []server.Option{server.WithGatherer(reg)}
	if db != nil {
		srvOpts = append(srvOpts, server.WithReadings(db))
	}
	return run(ctx.Context, cfg, pollSvc, logger, db, srvOpts...)
}

func newLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = lvl
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func newPoller(cfg *config.HomgarConfig, store homgar.SessionStore, m *metrics.Metrics, logger *zap.Logger) PollService {
	client := homgar.New(
		homgar.WithBaseURL(cfg.BaseURL),
		homgar.WithAreaCode(cfg.AreaCode),
		homgar.WithHTTPClient(homgar.NewHTTPClient(cfg.RequestTimeout)),
		homgar.WithRateLimit(rate.NewLimiter(rate.Every(cfg.RequestInterval), requestBurst)),
		homgar.WithKindResolver(model.NewKindResolver(cfg.FlowMeterModelCodes)),
		homgar.WithSessionStore(store),
		homgar.WithLogger(logger),
	)
	return poller.New(client,
		model.Credentials{Username: cfg.Username, Password: cfg.Password},
		poller.WithMinInterval(cfg.MinPollInterval),
		poller.WithMetrics(m),
		poller.WithLogger(logger),
	)
}

func openDatabase(ctx context.Context, cfg *config.DBConfig) (*database.Database, error) {
	if err := migration.Migrate(cfg.URL, cfg.MigrationsFolder); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return database.NewDatabase(pool), nil
}

// runOnce performs a single poll and prints the discovered sub-devices.
func runOnce(ctx context.Context, pollSvc PollService, w io.Writer) error {
	if _, err := pollSvc.Poll(ctx); err != nil {
		return err
	}
	return printTopology(w, pollSvc.Topology())
}

func printTopology(w io.Writer, topo model.Topology) error {
	nodes := topo.Nodes()
	if len(nodes) == 0 {
		_, err := fmt.Fprintln(w, "no sub-devices found")
		return err
	}
	for _, n := range nodes {
		line := fmt.Sprintf("home %d hub %d address %d: %s", n.HID, n.MID, n.Address, n.Device.Kind.FriendlyDesc())
		if !n.Device.HubOnline {
			line += " (hub offline)"
		}
		if flow, ok := n.Device.FlowReading(); ok {
			line += fmt.Sprintf(" total usage %g L", flow.TotalUsage)
		}
		if n.Device.Reading.Reported {
			line += fmt.Sprintf(" rssi %d dBm", n.Device.Reading.RFRSSI)
			if !n.Device.Reading.Timestamp.IsZero() {
				line += " at " + n.Device.Reading.Timestamp.UTC().Format(time.RFC3339)
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

type broadcaster interface {
	Broadcast() error
}

func run(ctx context.Context, cfg *config.Config, pollSvc PollService, logger *zap.Logger, db *database.Database, srvOpts ...server.Option) error {
	if err := pollSvc.Authenticate(ctx); err != nil {
		if errors.Is(err, homgar.ErrAuth) {
			return err
		}
		// the poll loop retries the login
		logger.Warn("initial login failed", zap.Error(err))
	}

	eg, ctx := errgroup.WithContext(ctx)
	srv := server.New(pollSvc, append([]server.Option{server.WithLogger(logger)}, srvOpts...)...)
	defer srv.Close()

	eg.Go(func() error {
		return cronPoll(ctx, cfg.HomgarCfg.PollSchedule, pollSvc, srv, logger)
	})

	if db != nil {
		eg.Go(func() error {
			return cronDbCleanup(ctx, cfg.DBCfg, db, logger)
		})
	}

	eg.Go(func() error {
		httpSrv := &http.Server{
			Handler:      srv.Handler(),
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Close()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

// pollOnce lets a started refresh and its publishing finish after ctx is cancelled,
// the vendor client's request timeout bounds it.
func pollOnce(ctx context.Context, pollSvc PollService, b broadcaster, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	polled, err := pollSvc.Poll(ctx)
	if err != nil {
		logger.Error("poll failed", zap.Error(err))
		return
	}
	if !polled {
		return
	}
	if err := publisher.PublishTopology(ctx, pollSvc.Topology()); err != nil {
		logger.Error("failed to publish topology", zap.Error(err))
	}
	if err := b.Broadcast(); err != nil {
		logger.Debug("failed to broadcast topology", zap.Error(err))
	}
}

func cronPoll(ctx context.Context, schedule string, pollSvc PollService, b broadcaster, logger *zap.Logger) error {
	pollOnce(ctx, pollSvc, b, logger)

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		pollOnce(ctx, pollSvc, b, logger)
	}); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func cronDbCleanup(ctx context.Context, cfg *config.DBConfig, db *database.Database, logger *zap.Logger) error {
	if err := db.Cleanup(ctx, cfg.Retention); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.CleanupSchedule, func() {
		if err := db.Cleanup(ctx, cfg.Retention); err != nil {
			logger.Error("error cleaning up database", zap.Error(err))
			return
		}
		logger.Info("cleaned up old readings", zap.Duration("retention", cfg.Retention))
	}); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
