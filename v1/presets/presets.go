// Package presets wires common deployments in one call.
package presets

import (
	"context"

	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/bus"
	"github.com/mirkobrombin/go-strata/v1/config"
	"github.com/mirkobrombin/go-strata/v1/journal"
	"github.com/mirkobrombin/go-strata/v1/wrapper"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a wrapper over a Redis adapter with Redis pub/sub
// carrying release notifications, so multiple processes sharing the
// instance queue fairly on the same names.
func NewRedis(ctx context.Context, opts RedisOptions) (*wrapper.Wrapper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	a, err := adapter.NewRedis(ctx, client)
	if err != nil {
		return nil, err
	}
	return wrapper.New(ctx, a,
		wrapper.WithConfig(config.Default()),
		wrapper.WithBus(bus.NewRedisBus(client)),
		wrapper.WithJournal(journal.NewInMemory(0)),
	)
}

// NewInMemory creates a fully local wrapper, suitable for tests and
// single-process deployments.
func NewInMemory(ctx context.Context) (*wrapper.Wrapper, error) {
	return wrapper.New(ctx, adapter.NewInMemory(),
		wrapper.WithJournal(journal.NewInMemory(0)),
	)
}
