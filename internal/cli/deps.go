package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"riddle-league/internal/app"
	"riddle-league/internal/config"
	"riddle-league/internal/infra/memory"
	"riddle-league/internal/infra/mongo"
	"riddle-league/internal/infra/postgres"
	infraredis "riddle-league/internal/infra/redis"
	"riddle-league/internal/observability"
)

// deps is the wired object graph shared by every subcommand.
type deps struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	store        app.Store
	engine       *app.ScoringEngine
	trigger      *app.Trigger
	sweeper      *app.Sweeper
	riddles      *app.RiddleService
	competitions *app.CompetitionService

	closers []func() error
}

func loadDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		observability.Sync(logger)
		return nil, err
	}
	return d, nil
}

func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewScoringMetrics(d.registry)
	if err != nil {
		return nil, err
	}

	loader, err := d.openStore(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}

	leaderboardTTL := config.TTLDuration(cfg.Leaderboard.TTL, 30*time.Second)
	var (
		leaderboards app.LeaderboardRepository
		rooms        app.RoomRepository
		lease        app.Lease
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, client.Close)
		leaderboards = infraredis.NewLeaderboardCache(client, loader, leaderboardTTL)
		roomStore, err := infraredis.NewRoomStore(ctx, client, cfg.Redis.Channel, logger.Named("rooms"))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, roomStore.Close)
		rooms = roomStore
		lease = infraredis.NewScoringLease(client, config.TTLDuration(cfg.Scoring.LeaseTTL, 30*time.Second))
	} else {
		leaderboards = memory.NewLeaderboardCache(loader, leaderboardTTL)
		rooms = memory.NewRoomStore()
	}

	d.competitions = app.NewCompetitionService(d.store, leaderboards, rooms, logger.Named("competitions"))
	d.engine = app.NewScoringEngine(d.store,
		app.WithEngineLogger(logger.Named("scoring")),
		app.WithEngineMetrics(metrics),
		app.WithScoreListeners(d.competitions),
	)
	d.trigger = app.NewTrigger(d.engine, lease, logger.Named("trigger"))
	d.sweeper = app.NewSweeper(d.store, d.trigger,
		app.WithSweepConcurrency(cfg.Scoring.SweepConcurrency),
		app.WithSweepLogger(logger.Named("sweeper")),
		app.WithSweepMetrics(metrics),
		app.WithSweepTimeout(config.TTLDuration(cfg.Scoring.SweepTimeout, time.Minute)),
	)
	d.riddles = app.NewRiddleService(d.store, d.trigger, logger.Named("riddles"), metrics)
	return d, nil
}

// openStore connects the configured backend and returns its leaderboard loader.
func (d *deps) openStore(ctx context.Context) (app.LeaderboardLoader, error) {
	switch d.cfg.Store.Driver {
	case config.DriverPostgres:
		db := postgres.Open(d.cfg.Postgres.URL)
		d.closers = append(d.closers, db.Close)
		group, err := postgres.Migrate(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if !group.IsZero() {
			d.logger.Info("migrations applied", zap.String("group", group.String()))
		}
		pool, err := pgxpool.Connect(ctx, d.cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		d.store = postgres.NewStore(db)
		return postgres.NewLeaderboardLoader(pool), nil

	case config.DriverMongo:
		store, err := mongo.Connect(ctx, d.cfg.Mongo.URI, d.cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { return store.Close(context.Background()) })
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		d.store = store
		return store, nil

	default:
		store := memory.NewStore()
		d.store = store
		if d.cfg.Store.Seed != "" {
			if err := seedFile(ctx, store, d.cfg.Store.Seed); err != nil {
				return nil, err
			}
			d.logger.Info("seeded in-memory store", zap.String("file", d.cfg.Store.Seed))
		}
		return store, nil
	}
}

// Close releases connections in reverse order of opening.
func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	observability.Sync(d.logger)
	return errors.Join(errs...)
}

func seedFile(ctx context.Context, store app.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	catalog, err := app.DecodeCatalog(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return app.Seed(ctx, store, catalog)
}
