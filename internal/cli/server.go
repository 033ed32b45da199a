package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-board-service/internal/app"
	"trivia-board-service/internal/config"
	"trivia-board-service/internal/infra/memory"
	"trivia-board-service/internal/infra/postgres"
	redisstore "trivia-board-service/internal/infra/redis"
	"trivia-board-service/internal/infra/sqlite"
	"trivia-board-service/internal/ingest"
	"trivia-board-service/internal/probe"
	transport "trivia-board-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	games, closer, err := openGameStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	} else {
		sessions = memory.NewSessionStore()
	}

	var prober ingest.Prober
	if cfg.Probe.Enabled {
		prober = probe.New(probe.Options{
			Timeout:     config.TTLDuration(cfg.Probe.Timeout, 5*time.Second),
			Workers:     cfg.Probe.Workers,
			RatePerHost: cfg.Probe.RatePerHost,
			CacheTTL:    config.TTLDuration(cfg.Probe.CacheTTL, 10*time.Minute),

			AllowPrivate: cfg.Probe.AllowPrivateHosts,
		})
	}

	service := app.NewGameService(sessions, games, ingest.New(prober), nil)

	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go service.RunReaper(reapCtx,
		config.TTLDuration(cfg.Session.ReapInterval, time.Minute),
		config.TTLDuration(cfg.Session.IdleTimeout, 2*time.Hour))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, cfg.Server.PublicURL),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia service on :%s (storage: %s)", finalPort, cfg.Backend())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openGameStore builds the snapshot store for the configured backend. Remote stores
// are fronted by an in-process cache when storage.cache_ttl is set.
func openGameStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (app.GameStore, io.Closer, error) {
	var (
		store  app.GameStore
		closer io.Closer
	)

	switch backend := cfg.Backend(); backend {
	case config.StorageMemory:
		return memory.NewGameStore(), nil, nil
	case config.StorageRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis storage selected but redis.addr is empty")
		}
		store = redisstore.NewGameStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	case config.StoragePostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		store, closer = postgres.NewGameStore(pool), poolCloser{pool}
	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		store, closer = db, db
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}

	if ttl := config.TTLDuration(cfg.Storage.CacheTTL, 0); ttl > 0 {
		store = memory.NewCachedGameStore(store, ttl)
	}
	return store, closer, nil
}

type poolCloser struct {
	pool *pgxpool.Pool
}

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}
