package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/infrastructure/config"
	"cryptodesk/internal/infrastructure/storage"
	"cryptodesk/internal/infrastructure/storage/composite"
	postgresrepo "cryptodesk/internal/infrastructure/storage/postgres"
	redisrepo "cryptodesk/internal/infrastructure/storage/redis"
	sqliterepo "cryptodesk/internal/infrastructure/storage/sqlite"
)

// Container owns the storage backends and their shutdown order.
type Container struct {
	cfg *config.Config

	sqliteRepo   *sqliterepo.Repo
	redisRepo    *redisrepo.Repo
	postgresRepo *postgresrepo.Repo

	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	if cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("sqlite init failed: %w", err)
		}
	}
	if cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
	}
	if cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("postgres init failed: %w", err)
		}
	}

	return c, nil
}

// Repository returns the write target for the pipeline: all enabled
// backends behind one composite, or a noop when nothing is enabled.
func (c *Container) Repository() port.Repository {
	repos := make([]port.Repository, 0, 3)
	if c.sqliteRepo != nil {
		repos = append(repos, c.sqliteRepo)
	}
	if c.redisRepo != nil {
		repos = append(repos, c.redisRepo)
	}
	if c.postgresRepo != nil {
		repos = append(repos, c.postgresRepo)
	}
	if len(repos) == 0 {
		return storage.NewNoopRepo()
	}
	return composite.New(repos...)
}

// SQLiteRepo exposes the sqlite backend for read-side queries; nil when
// disabled.
func (c *Container) SQLiteRepo() *sqliterepo.Repo { return c.sqliteRepo }

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(c.cfg.Storage.Redis.TTLSeconds) * time.Second
	repo := redisrepo.New(
		rdb,
		c.cfg.Storage.Redis.Prefix,
		ttl,
		c.cfg.Storage.Redis.TradeStream,
		c.cfg.Storage.Redis.PriceChannel,
	)
	c.redisRepo = repo
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return repo.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")
	return nil
}

func (c *Container) initPostgres() error {
	repo, err := postgresrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}
	c.postgresRepo = repo
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// Close releases every backend, last-initialized first.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
