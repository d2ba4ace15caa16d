package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"meshmap/internal/api"
	"meshmap/internal/config"
	"meshmap/internal/ingest"
	"meshmap/internal/logs"
	"meshmap/internal/mqtt"
	"meshmap/internal/store"
	"meshmap/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (defaults used when empty)")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	broker     = flag.String("broker", "", "MQTT broker URL (overrides config)")
	topic      = flag.String("topic", "", "MQTT topic filter (overrides config)")
)

func loadConfig() (config.Config, error) {
	if *configPath == "" {
		cfg := config.Default()
		applyFlagOverrides(&cfg)
		return cfg, config.Validate(cfg)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyFlagOverrides(&cfg)
	return cfg, config.Validate(cfg)
}

func applyFlagOverrides(cfg *config.Config) {
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *topic != "" {
		cfg.MQTT.Topic = *topic
	}
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logs.L().WithError(err).Fatal("invalid configuration")
	}
	if err := logs.Init(logs.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		logs.L().WithError(err).Fatal("logging setup failed")
	}
	log := logs.L()
	log.WithField("version", version.String()).Info("meshmap starting")

	hub := api.NewEventHub()
	db, err := store.Open(cfg.Storage.Path, store.Options{
		TxPowerDBm:  float64(cfg.Mesh.TxPowerDBm),
		WindowHours: cfg.Mesh.WindowHours,
		Notifier:    hub,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	pipeline, err := ingest.New(db, cfg.Mesh.ChannelKey)
	if err != nil {
		log.WithError(err).Fatal("failed to build ingest pipeline")
	}

	sub := mqtt.New(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		Topic:    cfg.MQTT.Topic,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		ClientID: cfg.MQTT.ClientID,
	}, pipeline.HandleMessage)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ingest loop: subscribe and feed every envelope through the pipeline.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sub.Run(ctx); err != nil {
			log.WithError(err).Error("mqtt subscriber failed")
			stop()
			return
		}
		log.Info("ingest routine terminated")
	}()

	// HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(db, hub).ServeMux()
		server := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.WithField("listen", cfg.HTTP.Listen).Info("http server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server failed")
				stop()
			}
		}()

		<-ctx.Done()
		log.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server shutdown error")
		}
	}()

	wg.Wait()
	log.Info("graceful shutdown complete")
}
