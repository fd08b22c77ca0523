// Package events carries change notifications between the API, the workers
// and the live channel hub over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel every change is published on.
const Channel = "session_events"

const (
	TypeConsent       = "consent"
	TypePlayerCreated = "player_created"
	TypePlayerUpdated = "player_updated"
	TypePlayerEnded   = "player_ended"
	TypeGameUpdated   = "game_updated"
	TypeGlobals       = "globals_updated"
	TypeSteps         = "steps_advanced"
)

// Event names who should re-evaluate their view. All wins over the id
// lists.
type Event struct {
	Type       string   `json:"type"`
	SessionIDs []string `json:"session_ids,omitempty"`
	PlayerIDs  []string `json:"player_ids,omitempty"`
	GameID     string   `json:"game_id,omitempty"`
	All        bool     `json:"all,omitempty"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus publishes and subscribes on Redis.
type Bus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, payload).Err()
}

// Subscribe delivers every event to handle until ctx is done. It returns
// once the subscription is confirmed.
func (b *Bus) Subscribe(ctx context.Context, handle func(Event)) error {
	pubsub := b.rdb.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[EVENTS] %s subscriber started", Channel)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[EVENTS] %s subscriber stopped", Channel)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[EVENTS] invalid event payload: %v", err)
					continue
				}
				handle(ev)
			}
		}
	}()
	return nil
}

// Matches reports whether ev concerns the given session, player or game.
func (ev Event) Matches(sessionID, playerID, gameID string) bool {
	if ev.All {
		return true
	}
	if gameID != "" && ev.GameID == gameID {
		return true
	}
	for _, id := range ev.SessionIDs {
		if id == sessionID {
			return true
		}
	}
	if playerID != "" {
		for _, id := range ev.PlayerIDs {
			if id == playerID {
				return true
			}
		}
	}
	return false
}

// Publish sends ev and logs a failure instead of returning it. Callers use
// it after a write that has already committed.
func Publish(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("[EVENTS] publish %s failed: %v", ev.Type, err)
	}
}
