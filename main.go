package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/livedraw/auth"
	"github.com/danielhkuo/livedraw/bridge"
	"github.com/danielhkuo/livedraw/cliparse"
	"github.com/danielhkuo/livedraw/db"
	"github.com/danielhkuo/livedraw/leader"
	"github.com/danielhkuo/livedraw/middleware"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/relay"
	"github.com/danielhkuo/livedraw/router"
	"github.com/danielhkuo/livedraw/store"
	"github.com/danielhkuo/livedraw/syncer"
	"github.com/danielhkuo/livedraw/transport"
)

const (
	syncChannel = "livedraw:settings-sync"
	tokenTTL    = 5 * time.Minute
)

func main() {
	if err := cliparse.LoadDotEnv(".env"); err != nil {
		slog.Error("Error loading .env", "error", err)
		os.Exit(1)
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, slog.Default()); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliparse.Config, logger *slog.Logger) error {
	// Connect to the database
	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	logger.Info("Database schema ready", "type", cfg.DatabaseType)

	// Shared slots. Redis gives change notification across replicas; without
	// it the leader lease lives in the database and storage events stay in
	// process.
	var (
		rdb         *redis.Client
		leaderSlot  store.Store = store.NewSQL(dbConn)
		triggerSlot store.Store = store.NewMemory()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		shared := store.NewRedis(rdb, "livedraw:", logger)
		leaderSlot, triggerSlot = shared, shared
	}

	// Transports
	probes := []transport.Probe{}
	if rdb != nil {
		probes = append(probes, transport.RedisProbe(ctx, rdb, syncChannel, logger))
	}
	hub := transport.NewHub()
	probes = append(probes, transport.Probe{
		Name: "hub:" + syncChannel,
		Open: func() (transport.Transport, error) { return hub.Open(syncChannel), nil },
	})
	primary := transport.Select(logger, probes...)

	var fallback transport.Transport
	trigger, err := transport.NewStorageTrigger(triggerSlot, transport.DefaultTriggerKey, cfg.Timings.TriggerClearDelay, logger)
	if err != nil {
		logger.Warn("storage fallback unavailable", "error", err)
	} else {
		fallback = trigger
	}

	settings := db.NewSettingsRepo(dbConn)
	svc := syncer.New(syncer.Options{
		Primary:  primary,
		Fallback: fallback,
		Facade:   settings,
		Logger:   logger,
	})
	defer svc.Close()
	logger.Info("Settings sync ready", "origin_id", svc.OriginID(), "transports", svc.Transports())

	// Auth tokens
	tokens := auth.NewCachedTokens(auth.NewSQLTokens(dbConn), tokenTTL)
	defer tokens.Close()

	// Bridge and relay share one session hub: the relay drives panels
	// through the extension's bridge session.
	sessions := bridge.NewHub()
	rel := relay.New(bridge.NewPanelCommander(sessions, cfg.PanelURL), relay.Options{
		Fallback: bridge.NewWindowFallback(sessions, cfg.PanelURL),
		OnSettingsUpdate: func(ctx context.Context, payload json.RawMessage) error {
			var ev models.SettingsChangeEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return fmt.Errorf("invalid settings update: %w", err)
			}
			_, err := svc.Update(ctx, ev.Kind, ev.Payload)
			return err
		},
		Logger: logger,
	})

	bridgeServer := bridge.NewServer(bridge.ServerOptions{
		Policy:            bridge.NewOriginPolicy(cfg.AllowedOrigins...),
		Tokens:            tokens,
		InstallSalt:       cfg.RelayKeySalt,
		Sync:              svc,
		Panels:            rel,
		Hub:               sessions,
		RequestTimeout:    cfg.Timings.RequestTimeout,
		MessagesPerSecond: cfg.Timings.MessagesPerSecond,
		Logger:            logger,
	})
	defer bridgeServer.Close()

	// Leadership gates the periodic settings refresh
	elector := leader.New(leaderSlot, leader.Options{
		ID:         svc.OriginID(),
		StaleAfter: cfg.Timings.LeaderStaleAfter,
		Heartbeat:  cfg.Timings.LeaderHeartbeat,
		Logger:     logger,
	})
	refresher := syncer.NewRefresher(svc, settings, elector, cfg.Timings.RefreshInterval, logger)

	// Create router
	mux := router.NewRouter(router.Deps{
		Sync:    svc,
		Facade:  settings,
		Elector: elector,
		Bridge:  bridgeServer,
		Relay:   rel,
	}, cfg)

	// Create server
	server := &http.Server{
		Handler:           middleware.CORS(bridge.NewOriginPolicy(cfg.AllowedOrigins...), mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bridgeServer.Close()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return elector.Run(gctx) })
	g.Go(func() error { return refresher.Run(gctx) })

	err = g.Wait()
	logger.Info("Server closed", "error", err)
	return err
}
