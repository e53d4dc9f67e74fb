package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"testapi/internal/config"
	"testapi/internal/db"
	"testapi/internal/logger"
	"testapi/internal/redis"
)

// Infra holds the optional backing services. A nil field means the
// service is not configured and an in-process fallback is used.
type Infra struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigration(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		infra.DB = pool
		logger.Info("database ready", nil)
	} else {
		logger.Warn("no database configured, users are kept in memory", nil)
	}

	if cfg.RedisAddr != "" {
		client, err := redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Redis = client
		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
	} else {
		logger.Warn("no redis configured, oauth request tokens are tracked in memory", nil)
	}

	return infra, nil
}

func (i *Infra) Close() error {
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Redis != nil {
		return i.Redis.Close()
	}
	return nil
}
