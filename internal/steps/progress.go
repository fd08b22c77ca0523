package steps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisProgress keeps a sequence's markers as two fields of the player's
// progress hash.
type RedisProgress struct {
	rdb        redis.Cmdable
	key        string
	indexField string
	doneField  string
}

// NewRedisProgress binds the index and done fields of playerID's progress
// hash.
func NewRedisProgress(rdb redis.Cmdable, playerID, indexField, doneField string) *RedisProgress {
	return &RedisProgress{
		rdb:        rdb,
		key:        fmt.Sprintf("player:%s:progress", playerID),
		indexField: indexField,
		doneField:  doneField,
	}
}

func (p *RedisProgress) Index(ctx context.Context) (int, error) {
	i, err := p.rdb.HGet(ctx, p.key, p.indexField).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return i, err
}

func (p *RedisProgress) SetIndex(ctx context.Context, i int) error {
	return p.rdb.HSet(ctx, p.key, p.indexField, i).Err()
}

func (p *RedisProgress) Done(ctx context.Context) (bool, error) {
	done, err := p.rdb.HGet(ctx, p.key, p.doneField).Bool()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return done, err
}

func (p *RedisProgress) SetDone(ctx context.Context) error {
	return p.rdb.HSet(ctx, p.key, p.doneField, "1").Err()
}

// MemoryProgress is an in-process Progress.
type MemoryProgress struct {
	mu    sync.Mutex
	index int
	done  bool
}

func (p *MemoryProgress) Index(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index, nil
}

func (p *MemoryProgress) SetIndex(_ context.Context, i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = i
	return nil
}

func (p *MemoryProgress) Done(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, nil
}

func (p *MemoryProgress) SetDone(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	return nil
}
