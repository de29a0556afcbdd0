// Lyngdorf Core discovers Lyngdorf receivers on the local network, turns
// them into configuration entries through setup flows and keeps a live
// connection to every configured receiver.
//
// For the HTTP surface, see internal/api. For the flow rules, see
// internal/flow.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/lyngdorf-core/migrations"

	"github.com/nerrad567/lyngdorf-core/internal/api"
	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/flow"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/database"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/logging"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lyngdorf-core/internal/neighbour"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
	"github.com/nerrad567/lyngdorf-core/internal/setup"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability. It
// returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Lyngdorf Core",
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := entry.NewRegistry(entry.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("entry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entry registry: %w", refreshErr)
	}
	log.Info("entry registry initialised", "entries", registry.Count())

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	models := receiver.NewResolver(&receiver.Prober{Timeout: cfg.Receiver.ProbeTimeout})
	models.SetLogger(log.Component("receiver"))
	macs := neighbour.NewResolver()
	macs.SetLogger(log.Component("neighbour"))

	receivers := startReceivers(ctx, cfg, log, registry, models, mqttClient, influxClient, hub)
	defer func() {
		log.Info("stopping receivers")
		if closeErr := receivers.Close(); closeErr != nil {
			log.Error("error stopping receivers", "error", closeErr)
		}
	}()

	var scanner *discovery.Scanner
	cache := discovery.NewCache()
	if cfg.Discovery.Enabled {
		searcher := discovery.NewSearcher(cfg.Discovery)
		searcher.SetLogger(log.Component("ssdp"))
		scanCfg := discovery.ScannerConfig{
			Finder: searcher,
			Cache:  cache,
			// Ignored receivers get no ssdp flow but stay cached for the
			// user step.
			Configured: func(ctx context.Context) (map[string]struct{}, error) {
				return registry.ConfiguredIDs(ctx, true)
			},
			Interval: cfg.Discovery.SearchInterval,
		}
		if mqttClient != nil {
			scanCfg.Publisher = mqttClient
		}
		scanner = discovery.NewScanner(scanCfg)
		scanner.SetLogger(log.Component("discovery"))
	} else {
		log.Info("discovery disabled")
	}

	flows := flow.NewManager(flow.Config{
		Models:          models,
		MACs:            macs,
		Store:           registry,
		Discoveries:     cache,
		Notifier:        flowNotifiers(log, hub, mqttClient, influxClient, receivers),
		ServiceTypes:    cfg.Discovery.ServiceTypes,
		NeighbourSettle: cfg.Receiver.NeighbourSettle,
	})
	flows.SetLogger(log.Component("flow"))

	if scanner != nil {
		scanner.SetHandler(flows.HandleDiscovery)
		scanner.Start(ctx)
		defer func() {
			log.Info("stopping discovery")
			scanner.Stop()
		}()
		log.Info("discovery started",
			"interval", cfg.Discovery.SearchInterval,
			"service_types", len(cfg.Discovery.ServiceTypes),
		)
	}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.Component("api"),
		Flows:        flows,
		Entries:      registry,
		Receivers:    receivers,
		Discoveries:  cache,
		ServiceTypes: cfg.Discovery.ServiceTypes,
		Hub:          hub,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, discovery, receivers, InfluxDB,
	// MQTT, database.
	log.Info("Lyngdorf Core stopped")
	return nil
}

// startReceivers creates the setup manager and connects every configured,
// non-ignored entry. Entries whose receiver cannot be reached are logged
// and left unloaded.
func startReceivers(ctx context.Context, cfg *config.Config, log *logging.Logger, registry *entry.Registry,
	models setup.ModelResolver, mqttClient *mqtt.Client, influxClient *influxdb.Client, hub *api.Hub) *setup.Manager {
	rxLog := log.Component("receiver")
	setupCfg := setup.Config{
		Models: models,
		Factory: func(host string, model receiver.Model) receiver.Receiver {
			c := receiver.NewClient(receiver.ClientConfig{
				Host:              host,
				ConnectTimeout:    cfg.Receiver.ProbeTimeout,
				ReconnectInterval: cfg.Receiver.ReconnectInterval,
			}, model)
			c.SetLogger(rxLog.With("host", host))
			return c
		},
		Listener: hub,
	}
	if mqttClient != nil {
		setupCfg.Bus = mqttClient
	}
	if influxClient != nil {
		setupCfg.Metrics = influxClient
	}

	mgr := setup.NewManager(setupCfg)
	mgr.SetLogger(log.Component("setup"))

	entries, err := registry.List(ctx, false)
	if err != nil {
		log.Error("listing entries for setup", "error", err)
		return mgr
	}
	n := mgr.SetupAll(ctx, entries)
	log.Info("receivers set up", "loaded", n, "entries", len(entries))
	return mgr
}

// flowNotifiers fans flow results out to WebSocket clients, MQTT, InfluxDB
// and receiver setup.
func flowNotifiers(log *logging.Logger, hub *api.Hub, mqttClient *mqtt.Client,
	influxClient *influxdb.Client, receivers *setup.Manager) flow.Notifiers {
	ns := flow.Notifiers{hub}
	if mqttClient != nil {
		ns = append(ns, flow.MQTTNotifier{Publisher: mqttClient, Logger: log.Component("flow")})
	}
	if influxClient != nil {
		ns = append(ns, flow.MetricsNotifier{Writer: influxClient})
	}
	return append(ns, receivers)
}

// getConfigPath returns the configuration file path.
// Uses LYNGDORF_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LYNGDORF_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections. mqttClient and
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
