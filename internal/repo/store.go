package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver         string
	DatabaseURL    string
	MaxConns       int32
	MongoURI       string
	MongoDatabase  string
	IdempotencyTTL time.Duration
}

// Store bundles the repositories of one backend with its lifecycle hooks.
type Store struct {
	Tasks TaskRepository
	Users UserRepository

	ping  func(context.Context) error
	close func()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// NewMemory returns a Store backed by a fresh MemoryStore.
func NewMemory() *Store {
	m := NewMemoryStore()
	return &Store{Tasks: m.Tasks(), Users: m.Users()}
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case DriverMongo:
		return openMongo(ctx, cfg, logger)
	case DriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Successfully connected to the Database!", zap.String("driver", DriverPostgres))

	return &Store{
		Tasks: NewTaskRepo(pool),
		Users: NewUserRepo(pool),
		ping:  pool.Ping,
		close: pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			logger.Error("Mongo disconnect failed", zap.Error(err))
		}
	}

	if err := client.Ping(ctx, nil); err != nil {
		disconnect()
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	if err := EnsureMongoIndexes(ctx, db, cfg.IdempotencyTTL); err != nil {
		disconnect()
		return nil, err
	}
	logger.Info("Successfully connected to the Database!", zap.String("driver", DriverMongo))

	return &Store{
		Tasks: NewMongoTaskRepo(db),
		Users: NewMongoUserRepo(db),
		ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close: disconnect,
	}, nil
}
