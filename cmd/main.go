package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "healthbox_bridge/docs"
	"healthbox_bridge/internal/config"
	"healthbox_bridge/internal/handlers"
	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/homeassistant"
	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/metrics"
	"healthbox_bridge/internal/repository"
	"healthbox_bridge/internal/repository/db"
	"healthbox_bridge/internal/server"
	"healthbox_bridge/internal/service"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	firstRefreshTimeout = 30 * time.Second
	shutdownTimeout     = 10 * time.Second
	mqttConnectWait     = 5 * time.Second
	mqttDisconnectQuiet = 250 // ms
)

// @title                       Healthbox bridge API
// @version                     1.0
// @description                 Polls a Renson Healthbox and exposes its rooms, boost and profile actions.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configPath := flag.String("config", "", "path to config file (default configs/config.yml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer closeDB(sqlDB, log)

	client, err := healthbox.NewClient(cfg.Device.Host)
	if err != nil {
		log.Fatalw("invalid device host", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	coord := service.NewCoordinator(client, service.CoordinatorConfig{
		Interval:    cfg.Poll.Interval,
		BoostPolicy: cfg.Poll.BoostFailurePolicy,
		APIKey:      cfg.Device.APIKey,
	}, repos.EventRepo, log)
	services := service.NewService(repos, coord, service.Options{
		Auth: service.AuthOptions{
			SigningKey:  cfg.Auth.SigningKey,
			TokenTTL:    cfg.Auth.TokenTTL,
			AllowSignUp: cfg.Auth.AllowSignUp,
		},
		HistoryRetention: cfg.History.Retention,
	}, log)

	if cfg.History.Enabled {
		coord.Subscribe(services.History.Record)
	}

	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = startMQTT(cfg.MQTT, coord, services, log)
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = newRegistry(coord)
	}

	// the first poll must succeed before anything is served
	firstCtx, firstCancel := context.WithTimeout(context.Background(), firstRefreshTimeout)
	snap, err := coord.FirstRefresh(firstCtx)
	firstCancel()
	if err != nil {
		log.Fatalw("initial device poll failed", "err", err, "host", client.BaseURL(), "kind", healthbox.KindOf(err).String())
	}
	log.Infow("device_connected", "serial", snap.Serial, "rooms", len(snap.Rooms), "host", client.BaseURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coord.Run(ctx)

	apiHandler := handlers.NewHandler(services, log, gatherer)
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)

	waitForShutdown(cancel, srv, mqttClient, log)
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// startMQTT connects in the background. Discovery and subscriptions are sent
// from the bridge's OnConnect handler and on the next published snapshot.
func startMQTT(cfg config.MQTTConfig, coord *service.Coordinator, services *service.Service, log *logger.Logger) mqtt.Client {
	var bridge *homeassistant.Bridge
	opts := homeassistant.ClientOptions(cfg, log).
		SetOnConnectHandler(func(c mqtt.Client) { bridge.OnConnect(c) })
	client := mqtt.NewClient(opts)
	bridge = homeassistant.NewBridge(client, services.Control, homeassistant.Options{
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		TopicPrefix:     cfg.TopicPrefix,
	}, log)
	coord.Subscribe(bridge.PublishSnapshot)

	t := client.Connect()
	if !t.WaitTimeout(mqttConnectWait) {
		log.Warnw("mqtt_connect_pending", "broker", cfg.Broker)
	} else if t.Error() != nil {
		log.Warnw("mqtt_connect_failed", "broker", cfg.Broker, "err", t.Error())
	}
	return client
}

func newRegistry(coord *service.Coordinator) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(coord),
	)
	return reg
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "addr", srv.Addr())
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, mqttClient mqtt.Client, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop polling
	cancel()

	if mqttClient != nil {
		mqttClient.Disconnect(mqttDisconnectQuiet)
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
