// Package sequence hands out business trade ids.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradebook-core/pkg/db"
)

// TradeIDName is the counter name used for trade ids.
const TradeIDName = "trade_id"

// Generator returns strictly increasing ids, safe for concurrent callers.
type Generator interface {
	Next(ctx context.Context) (int64, error)
}

// SQLStore is the storage the SQLite generator runs on.
type SQLStore interface {
	NextSequenceValue(ctx context.Context, name string, base int64) (int64, error)
	SetSequenceFloor(ctx context.Context, name string, floor int64) error
	MaxTradeID(ctx context.Context) (int64, error)
}

// SQLite keeps the counter in the sequences table.
type SQLite struct {
	store SQLStore
	name  string
	base  int64
}

// NewSQLite prepares a generator whose first id is base, or the highest stored
// trade id plus one when trades already exist.
func NewSQLite(ctx context.Context, store SQLStore, base int64) (*SQLite, error) {
	floor, err := Floor(ctx, store, base)
	if err != nil {
		return nil, err
	}
	if err := store.SetSequenceFloor(ctx, TradeIDName, floor); err != nil {
		return nil, err
	}
	return &SQLite{store: store, name: TradeIDName, base: base}, nil
}

// Next advances the counter.
func (g *SQLite) Next(ctx context.Context) (int64, error) {
	return g.store.NextSequenceValue(ctx, g.name, g.base)
}

// raiseFloor sets the counter to ARGV[1] unless it is already higher.
var raiseFloor = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then
  redis.call('SET', KEYS[1], floor)
  return floor
end
return cur
`)

// Redis shares the counter between instances through INCR.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to url (redis://[:password@]host:port/db) and makes sure
// the counter is not below floor, so the next id is at least floor+1.
func NewRedis(ctx context.Context, url, key string, floor int64) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if key == "" {
		key = "tradebook:seq:" + TradeIDName
	}
	if err := raiseFloor.Run(ctx, client, []string{key}, floor).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("init %s: %w", key, err)
	}
	return &Redis{client: client, key: key}, nil
}

// Next increments the shared counter.
func (g *Redis) Next(ctx context.Context) (int64, error) {
	v, err := g.client.Incr(ctx, g.key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", g.key, err)
	}
	return v, nil
}

// Close releases the connection pool.
func (g *Redis) Close() error { return g.client.Close() }

// Floor returns the value a shared counter must start above: the highest
// stored trade id, or base-1 on an empty book.
func Floor(ctx context.Context, store SQLStore, base int64) (int64, error) {
	highest, err := store.MaxTradeID(ctx)
	if err != nil {
		return 0, err
	}
	if highest < base-1 {
		return base - 1, nil
	}
	return highest, nil
}

var (
	_ Generator = (*SQLite)(nil)
	_ Generator = (*Redis)(nil)
	_ SQLStore  = (*db.Store)(nil)
)
