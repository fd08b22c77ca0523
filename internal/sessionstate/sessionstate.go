// Package sessionstate keeps per-browser-session facts in Redis: consent,
// the identity resolution flag, the session to player binding, and how many
// live channels the session has open.
package sessionstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(kind, sid string) string {
	return fmt.Sprintf("session:%s:%s", sid, kind)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Consent records that the session accepted the consent form.
func (s *Store) Consent(ctx context.Context, sid string) error {
	return s.rdb.Set(ctx, key("consent", sid), "1", s.ttl).Err()
}

func (s *Store) Consented(ctx context.Context, sid string) (bool, error) {
	return s.exists(ctx, key("consent", sid))
}

// BeginResolving marks identity creation as in flight. It returns false if
// another request already holds the flag.
func (s *Store) BeginResolving(ctx context.Context, sid string) (bool, error) {
	return s.rdb.SetNX(ctx, key("resolving", sid), "1", 30*time.Second).Result()
}

func (s *Store) EndResolving(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, key("resolving", sid)).Err()
}

func (s *Store) Resolving(ctx context.Context, sid string) (bool, error) {
	return s.exists(ctx, key("resolving", sid))
}

// BindPlayer attaches a player to the session.
func (s *Store) BindPlayer(ctx context.Context, sid, playerID string) error {
	return s.rdb.Set(ctx, key("player", sid), playerID, s.ttl).Err()
}

// PlayerFor returns the session's player, or "" when none is bound.
func (s *Store) PlayerFor(ctx context.Context, sid string) (string, error) {
	id, err := s.rdb.Get(ctx, key("player", sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Connected counts a newly opened live channel.
func (s *Store) Connected(ctx context.Context, sid string) error {
	k := key("channels", sid)
	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnected releases a live channel counted by Connected.
func (s *Store) Disconnected(ctx context.Context, sid string) error {
	k := key("channels", sid)
	n, err := s.rdb.Decr(ctx, k).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return s.rdb.Del(ctx, k).Err()
	}
	return nil
}

// ParticipantConnected reports whether the session has a live channel open.
func (s *Store) ParticipantConnected(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Get(ctx, key("channels", sid)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) exists(ctx context.Context, k string) (bool, error) {
	n, err := s.rdb.Exists(ctx, k).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
