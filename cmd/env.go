package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-ml/podium/internal/config"
	"github.com/meridian-ml/podium/internal/monitoring"
	"github.com/meridian-ml/podium/internal/notify"
	"github.com/meridian-ml/podium/internal/pipeline"
	"github.com/meridian-ml/podium/internal/queue"
	"github.com/meridian-ml/podium/internal/storage"
	"github.com/meridian-ml/podium/internal/store"
)

// scoringEnv holds the initialized store, blob storage, queue, and pipeline
// shared by the serve/worker/score commands.
type scoringEnv struct {
	Store    store.Store
	Blobs    storage.Store
	Queue    queue.Queue
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Metrics
}

// Close releases resources held by the environment.
func (se *scoringEnv) Close() {
	if se.Queue != nil {
		_ = se.Queue.Close()
	}
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initEnv sets up the store, blob storage, queue, and pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context, withMetrics bool) (*scoringEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	blobs, err := initStorage()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var metrics *monitoring.Metrics
	if withMetrics {
		metrics = monitoring.New()
	}

	q := queue.NewMemory(cfg.Scoring.QueueSize)
	p := pipeline.New(st, blobs, q, notify.NewStoreNotifier(st), metrics, pipeline.Config{
		Async: cfg.Scoring.Async,
	})

	zap.L().Info("environment initialized",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Bool("async", cfg.Scoring.Async),
	)

	return &scoringEnv{
		Store:    st,
		Blobs:    blobs,
		Queue:    q,
		Pipeline: p,
		Metrics:  metrics,
	}, nil
}

// seedCompetitions upserts competition definitions from a YAML file.
func seedCompetitions(ctx context.Context, env *scoringEnv, path string) error {
	comps, err := config.LoadCompetitions(path)
	if err != nil {
		return err
	}
	for i := range comps {
		if err := env.Store.PutCompetition(ctx, &comps[i]); err != nil {
			return eris.Wrapf(err, "seed competition %s", comps[i].Slug)
		}
	}
	zap.L().Info("competitions seeded", zap.Int("count", len(comps)))
	return nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "podium.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initStorage() (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "local":
		return storage.NewLocal(cfg.Storage.BaseDir)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
