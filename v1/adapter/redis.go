package adapter

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/mirkobrombin/go-strata/v1/criteria"
	strataerrors "github.com/mirkobrombin/go-strata/v1/errors"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

const defaultRedisOpTimeout = 5 * time.Second

// Redis is an Adapter backed by a Redis instance. Each record is a JSON
// blob keyed by collection and ordinal; a per-collection counter
// assigns ordinals and a set indexes the live record ids.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// RedisOption configures a Redis adapter.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix  string
	timeout time.Duration
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// WithPrefix namespaces every key the adapter writes.
func WithPrefix(p string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = p
	}
}

// NewRedis returns a Redis adapter using the provided client. It pings
// the server with bounded backoff so misconfiguration surfaces at
// construction rather than on the first lock insert.
func NewRedis(ctx context.Context, client *redis.Client, opts ...RedisOption) (*Redis, error) {
	o := redisOptions{prefix: "strata", timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: redis ping: %w", err)
	}
	return &Redis{client: client, prefix: o.prefix, timeout: o.timeout}, nil
}

func (a *Redis) key(parts ...string) string {
	k := a.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (a *Redis) mapErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return strataerrors.ErrTimeout
	}
	if stdErrors.Is(err, redis.ErrClosed) {
		return strataerrors.ErrConnectionClosed
	}
	return err
}

// Define implements Adapter.Define by storing the JSON-encoded layout.
func (a *Redis) Define(ctx context.Context, name string, def schema.Definition) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	if err := a.client.Set(cctx, a.key("schema", name), data, 0).Err(); err != nil {
		return a.mapErr(err)
	}
	return nil
}

// Describe implements Adapter.Describe.
func (a *Redis) Describe(ctx context.Context, name string) (schema.Definition, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	data, err := a.client.Get(cctx, a.key("schema", name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, a.mapErr(err)
	}
	var def schema.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, false, err
	}
	return def, true, nil
}

// Drop implements Adapter.Drop, removing the layout, the counter, the
// index and every record.
func (a *Redis) Drop(ctx context.Context, name string) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ids, err := a.client.SMembers(cctx, a.key("index", name)).Result()
	if err != nil && err != redis.Nil {
		return a.mapErr(err)
	}
	pipe := a.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(cctx, a.key("record", name, id))
	}
	pipe.Del(cctx, a.key("index", name), a.key("seq", name), a.key("schema", name))
	if _, err := pipe.Exec(cctx); err != nil {
		return a.mapErr(err)
	}
	return nil
}

// Create implements Adapter.Create. The ordinal comes from INCR, so ids
// are monotonically increasing and never reused even after deletes.
func (a *Redis) Create(ctx context.Context, name string, record map[string]any) (map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	id, err := a.client.Incr(cctx, a.key("seq", name)).Result()
	if err != nil {
		return nil, a.mapErr(err)
	}
	stored := make(map[string]any, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	idStr := strconv.FormatInt(id, 10)
	pipe := a.client.TxPipeline()
	pipe.Set(cctx, a.key("record", name, idStr), data, 0)
	pipe.SAdd(cctx, a.key("index", name), idStr)
	if _, err := pipe.Exec(cctx); err != nil {
		return nil, a.mapErr(err)
	}
	return stored, nil
}

func (a *Redis) scan(ctx context.Context, name string) ([]map[string]any, error) {
	ids, err := a.client.SMembers(ctx, a.key("index", name)).Result()
	if err != nil && err != redis.Nil {
		return nil, a.mapErr(err)
	}
	records := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data, err := a.client.Get(ctx, a.key("record", name, id)).Bytes()
		if err == redis.Nil {
			continue // deleted between SMembers and Get
		}
		if err != nil {
			return nil, a.mapErr(err)
		}
		var rec map[string]any
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Find implements Adapter.Find with a full scan filtered in memory.
func (a *Redis) Find(ctx context.Context, name string, c criteria.Criteria) ([]map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	records, err := a.scan(cctx, name)
	if err != nil {
		return nil, err
	}
	return c.Apply(records), nil
}

// Count implements Adapter.Count.
func (a *Redis) Count(ctx context.Context, name string, c criteria.Criteria) (int64, error) {
	records, err := a.Find(ctx, name, c)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Update implements Adapter.Update.
func (a *Redis) Update(ctx context.Context, name string, c criteria.Criteria, values map[string]any) ([]map[string]any, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	records, err := a.scan(cctx, name)
	if err != nil {
		return nil, err
	}
	var updated []map[string]any
	for _, rec := range records {
		if !c.Matches(rec) {
			continue
		}
		for k, v := range values {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		idStr := recordIDString(rec["id"])
		if err := a.client.Set(cctx, a.key("record", name, idStr), data, 0).Err(); err != nil {
			return nil, a.mapErr(err)
		}
		updated = append(updated, rec)
	}
	return updated, nil
}

// Destroy implements Adapter.Destroy.
func (a *Redis) Destroy(ctx context.Context, name string, c criteria.Criteria) error {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	records, err := a.scan(cctx, name)
	if err != nil {
		return err
	}
	pipe := a.client.TxPipeline()
	for _, rec := range records {
		if !c.Matches(rec) {
			continue
		}
		idStr := recordIDString(rec["id"])
		pipe.Del(cctx, a.key("record", name, idStr))
		pipe.SRem(cctx, a.key("index", name), idStr)
	}
	if _, err := pipe.Exec(cctx); err != nil {
		return a.mapErr(err)
	}
	return nil
}

func recordIDString(v any) string {
	switch id := v.(type) {
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return fmt.Sprintf("%v", id)
	}
}
