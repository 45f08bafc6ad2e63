// Gray Logic Relay
//
// The relay bridges a TLS MQTT broker used by field devices to browser
// clients. Device messages on the routed topics are pushed to every
// connected WebSocket client, and commands submitted over HTTP by signed-in
// users are published to the device command topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/relay.yaml"

// auditQueueSize bounds audit entries waiting for the database.
const auditQueueSize = 256

// archiveQueueSize bounds routed events waiting for the telemetry archive.
const archiveQueueSize = 1024

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay and blocks until ctx is cancelled or the broker
// connection is given up. Deferred closes run in reverse start order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Relay",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database: accounts and audit trail
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Sessions
	revocations, err := openRevocationStore(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := revocations.Close(); closeErr != nil {
			log.Error("error closing revocation store", "error", closeErr)
		}
	}()
	log.Info("revocation store ready", "redis", cfg.Redis.Enabled)

	gate := auth.NewGate(cfg.Security.JWT.Secret, cfg.Security.Cookie.Name, revocations)
	authService := auth.NewService(
		auth.NewUserRepository(db.DB),
		gate,
		cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute,
	)

	// Audit trail. Its context outlives ctx so entries recorded during
	// shutdown are still flushed before the database closes.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log.With("component", "audit"), auditQueueSize)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		recorder.Run(auditCtx)
		close(auditDone)
	}()
	defer func() {
		stopAudit()
		<-auditDone
	}()

	// Telemetry archive (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if hcErr := influxClient.HealthCheck(ctx); hcErr != nil {
			log.Warn("InfluxDB not reachable yet, writes will be retried in batches", "error", hcErr)
		}
		log.Info("InfluxDB archive enabled",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Routing
	table, err := relay.NewTable(cfg.MQTT.Topics.Routes)
	if err != nil {
		return fmt.Errorf("building routing table: %w", err)
	}
	metrics := &relay.Metrics{}
	hub := api.NewHub(cfg.WebSocket, log)

	bridge := relay.NewBridge(relay.NewRouter(table), hub, metrics, log)
	if influxClient != nil {
		// The write API blocks while a batch is in flight, so the archive
		// runs off the broker delivery goroutine. Stopped before the
		// InfluxDB client closes.
		archive := relay.NewQueuedSink(relay.SinkFunc(func(ev relay.Event) {
			influxClient.WriteTelemetry(ev.Name, ev.Topic, ev.Payload, ev.ReceivedAt)
		}), archiveQueueSize, metrics, log)
		archiveCtx, stopArchive := context.WithCancel(context.Background())
		archiveDone := make(chan struct{})
		go func() {
			archive.Run(archiveCtx)
			close(archiveDone)
		}()
		defer func() {
			stopArchive()
			<-archiveDone
		}()
		bridge.AddSink(archive)
	}

	// Broker. Subscriptions are registered before Start so the first
	// connect already carries them.
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnStateChange(func(prev, next mqtt.State) {
		log.Info("broker state changed", "from", prev.String(), "to", next.String())
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	if subErr := bridge.Start(mqttClient, byte(cfg.MQTT.QoS)); subErr != nil {
		return fmt.Errorf("subscribing routed topics: %w", subErr)
	}

	if startErr := mqttClient.Start(ctx); startErr != nil {
		if !errors.Is(startErr, mqtt.ErrConnectionFailed) {
			return fmt.Errorf("starting MQTT client: %w", startErr)
		}
		// Not fatal: the supervisor is already retrying.
		log.Warn("MQTT broker unreachable at startup", "error", startErr)
	}

	publisher := relay.NewPublisher(mqttClient, cfg.MQTT.Topics.Command, byte(cfg.MQTT.QoS), metrics, log)
	publisher.SetAuditRecorder(recorder)

	// HTTP
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Auth:       authService,
		Commands:   publisher,
		Hub:        hub,
		Broker:     mqttClient,
		Metrics:    metrics,
		DB:         db,
		Migrations: migrations.FS,
		Audit:      recorder,
		Records:    auditRepo,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete",
		"api", server.Addr(),
		"routes", table.Len(),
		"command_topic", publisher.Topic(),
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case fatalErr := <-mqttClient.Fatal():
		return fmt.Errorf("broker connection: %w", fatalErr)
	}

	log.Info("Gray Logic Relay stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openRevocationStore returns the Redis store when enabled, otherwise an
// in-memory one.
func openRevocationStore(cfg config.RedisConfig) (auth.RevocationStore, error) {
	if !cfg.Enabled {
		return auth.NewMemoryRevocationStore(), nil
	}

	store, err := auth.NewRedisRevocationStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return store, nil
}
