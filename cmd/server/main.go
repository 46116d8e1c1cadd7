package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/auth"
	"github.com/Tyrowin/nexus-realtime/internal/config"
	"github.com/Tyrowin/nexus-realtime/internal/events"
	"github.com/Tyrowin/nexus-realtime/internal/logging"
	"github.com/Tyrowin/nexus-realtime/internal/notify"
	"github.com/Tyrowin/nexus-realtime/internal/presence"
	"github.com/Tyrowin/nexus-realtime/internal/server"
	"github.com/Tyrowin/nexus-realtime/internal/storage/badgerdb"
	"github.com/Tyrowin/nexus-realtime/internal/storage/postgres"
	"github.com/Tyrowin/nexus-realtime/internal/telemetry"
)

const serviceName = "nexus-realtime"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// storage is the directory and notification store pair selected by driver.
type storage struct {
	directory notify.Directory
	store     notify.Store
	closer    io.Closer
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, cfg.OTLPEndpoint, serviceName, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	provider.SetGlobal()
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("metrics shutdown")
		}
	}()
	metrics, err := telemetry.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.closer.Close(); err != nil {
			log.WithError(err).Warn("storage close")
		}
	}()

	registry := presence.NewRegistry()
	rooms := presence.NewActiveRooms()
	hub := server.NewHub(registry, rooms, log, metrics)
	server.StartHub(hub)

	engine := notify.NewEngine(notify.Deps{
		Directory: st.directory,
		Store:     st.store,
		Presence:  registry,
		Rooms:     rooms,
		Pusher:    hub,
		Log:       log,
		Metrics:   metrics,
	})

	var hook notify.Hook
	if cfg.InternalHookToken != "" {
		hook = engine
	}

	srvCfg := server.ConfigFrom(cfg)
	mux := server.SetupRoutes(server.Deps{
		Hub:      hub,
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Hook:     hook,
		Config:   srvCfg,
		Log:      log,
	})
	httpServer := server.CreateServer(srvCfg.Port, mux)

	errs := make(chan error, 2)
	go func() { errs <- server.StartServer(httpServer, log) }()

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		consumer, err := events.NewConsumer(brokers, cfg.KafkaTopic, cfg.KafkaGroupID, engine, log)
		if err != nil {
			return err
		}
		defer func() { _ = consumer.Close() }()
		log.WithFields(logrus.Fields{"topic": cfg.KafkaTopic, "group": cfg.KafkaGroupID}).Info("consuming message events")
		go func() { errs <- consumer.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			log.WithError(err).Error("component stopped")
		}
	}
	stop()

	timeout := cfg.Shutdown()
	var shutdownErr error
	if err := server.ShutdownServer(httpServer, timeout, log); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if err := hub.Shutdown(timeout); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("hub: %w", err))
	}
	return shutdownErr
}

func openStorage(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres storage")
		return &storage{
			directory: postgres.NewDirectory(pool),
			store:     postgres.NewNotificationStore(pool),
			closer:    closerFunc(func() error { pool.Close(); return nil }),
		}, nil

	default:
		store, err := badgerdb.Open(cfg.BadgerPath, log)
		if err != nil {
			return nil, err
		}
		if cfg.BadgerSeedFile != "" {
			seed, err := os.ReadFile(cfg.BadgerSeedFile)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("read seed file: %w", err)
			}
			if err := store.Seed(seed); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		log.WithField("path", cfg.BadgerPath).Info("using embedded badger storage")
		return &storage{directory: store, store: store, closer: store}, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
