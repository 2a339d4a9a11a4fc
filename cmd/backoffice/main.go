// Housing Back Office - authentication and access control server.
//
// This is the main entry point for the back office API. It serves login,
// registration, staff management and the page-gated record collections,
// and fans every security-relevant event out to the audit sinks.
//
// For configuration, see: configs/config.example.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/housing-backoffice/internal/api"
	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/database"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/influxdb"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/logging"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/mqtt"
	"github.com/nerrad567/housing-backoffice/internal/records"
	"github.com/nerrad567/housing-backoffice/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when BACKOFFICE_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// auditDrainTimeout bounds how long shutdown waits for queued events.
	auditDrainTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting housing back office",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	tokens, err := auth.NewTokenService(cfg.Security.JWT.Secret, cfg.Security.JWT.TokenTTL())
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrFatalConfiguration, err)
	}

	primaries := auth.NewPrimaryRepository(db.DB)
	staff := auth.NewStaffRepository(db.DB)
	authSvc := auth.NewService(primaries, staff, tokens, log.With("component", "auth").Logger)

	if _, seedErr := auth.SeedAdmin(ctx, primaries, cfg.Security.SeedAdminEmail, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	checks := map[string]api.HealthChecker{"database": db}
	registry := prometheus.NewRegistry()
	hub := api.NewHub(cfg.WebSocket, log)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	metricsSink, err := audit.NewMetricsSink(registry)
	if err != nil {
		return err
	}
	sinks := []audit.Sink{auditRepo, metricsSink, audit.NewHubSink(hub)}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		sinks = append(sinks, audit.NewMQTTSink(mqttClient, cfg.Site.ID, byte(cfg.MQTT.QoS))) // #nosec G115 -- validated 0-2
	}

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		sinks = append(sinks, audit.NewInfluxSink(influxClient))
	}

	recorder := audit.NewRecorder(log.With("component", "audit").Logger, audit.DefaultBufferSize, sinks)
	recorder.Start(ctx)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		defer cancel()
		if closeErr := recorder.Close(drainCtx); closeErr != nil {
			log.Warn("audit queue not fully drained", "error", closeErr)
		}
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn("audit events dropped during run", "count", dropped)
		}
	}()

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		RateLimit: cfg.Security.RateLimit,
		Logger:    log,
		Auth:      authSvc,
		Records:   records.NewSQLiteStore(db.DB),
		Audit:     auditRepo,
		Recorder:  recorder,
		Hub:       hub,
		Registry:  registry,
		Checks:    checks,
		Version:   version,

		AllowAdminRegistration: cfg.Security.AllowAdminRegistration,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"token_ttl", tokens.TTL().String(),
		"audit_sinks", len(sinks),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API server, audit drain, InfluxDB,
	// MQTT, database.
	return nil
}

// getConfigPath returns BACKOFFICE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("BACKOFFICE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when the broker is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
	if errors.Is(err, mqtt.ErrDisabled) {
		log.Info("MQTT disabled, auth events will not be published")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topics", mqtt.Topics{}.AllAuthEvents(cfg.Site.ID),
	)
	return client, nil
}

// connectInflux returns nil when InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
		"measurement", influxdb.MeasurementAuthAttempts,
	)
	return client, nil
}
