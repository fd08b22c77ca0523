package assign

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/store"
)

// Store is the slice of the entity store the workers drive.
type Store interface {
	ExperimentOpen(ctx context.Context) (open, found bool, err error)
	AssignWaiting(ctx context.Context) ([]store.Assignment, error)
	FullLobbies(ctx context.Context) ([]string, error)
	StartGame(ctx context.Context, gameID string) (*store.Placement, error)
	AcknowledgeEndedGames(ctx context.Context) ([]store.EndedGamePlayer, error)
}

// StartAssignWorker fills lobby games with waiting players and starts every
// lobby that holds its headcount, including games filled by hand and games
// whose earlier start failed.
func StartAssignWorker(ctx context.Context, s Store, bus events.Publisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[ASSIGN] Starting assignment worker (poll every %v)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ASSIGN] Worker stopped")
			return
		case <-ticker.C:
			processAssignments(ctx, s, bus)
		}
	}
}

func processAssignments(ctx context.Context, s Store, bus events.Publisher) {
	assignWaiting(ctx, s, bus)
	startFullLobbies(ctx, s, bus)
}

// assignWaiting only hands out seats while the experiment is open.
func assignWaiting(ctx context.Context, s Store, bus events.Publisher) {
	open, found, err := s.ExperimentOpen(ctx)
	if err != nil {
		log.Printf("[ASSIGN] Failed to read experiment_open: %v", err)
		return
	}
	if !found || !open {
		return
	}

	batches, err := s.AssignWaiting(ctx)
	if err != nil {
		log.Printf("[ASSIGN] Failed to assign waiting players: %v", err)
		return
	}
	for _, a := range batches {
		log.Printf("[ASSIGN] %d players -> game %s (full=%v)", len(a.PlayerIDs), a.GameID, a.Full)
		events.Publish(ctx, bus, events.Event{Type: events.TypePlayerUpdated, PlayerIDs: a.PlayerIDs, GameID: a.GameID})
	}
}

func startFullLobbies(ctx context.Context, s Store, bus events.Publisher) {
	full, err := s.FullLobbies(ctx)
	if err != nil {
		log.Printf("[ASSIGN] Failed to list full lobbies: %v", err)
		return
	}
	for _, gameID := range full {
		pl, err := s.StartGame(ctx, gameID)
		if errors.Is(err, store.ErrConflict) {
			// started or ended elsewhere since the listing
			continue
		}
		if err != nil {
			log.Printf("[ASSIGN] Failed to start game %s: %v", gameID, err)
			continue
		}
		log.Printf("[ASSIGN] ✓ Game %s started: round=%s stage=%s players=%d",
			pl.GameID, pl.RoundID, pl.StageID, len(pl.PlayerIDs))
		events.Publish(ctx, bus, events.Event{Type: events.TypeGameUpdated, GameID: pl.GameID, PlayerIDs: pl.PlayerIDs})
	}
}

// StartEndWorker ends the players of ended games. A participant waits on
// the Loading screen until this acknowledgment lands.
func StartEndWorker(ctx context.Context, s Store, bus events.Publisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[END] Starting end worker (poll every %v)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[END] Worker stopped")
			return
		case <-ticker.C:
			acknowledgeEnded(ctx, s, bus)
		}
	}
}

func acknowledgeEnded(ctx context.Context, s Store, bus events.Publisher) {
	ended, err := s.AcknowledgeEndedGames(ctx)
	if err != nil {
		log.Printf("[END] Failed to acknowledge ended games: %v", err)
		return
	}
	if len(ended) == 0 {
		return
	}

	byGame := make(map[string][]string)
	for _, e := range ended {
		byGame[e.GameID] = append(byGame[e.GameID], e.PlayerID)
	}
	for gameID, ids := range byGame {
		log.Printf("[END] Game %s: %d players ended", gameID, len(ids))
		events.Publish(ctx, bus, events.Event{Type: events.TypePlayerEnded, PlayerIDs: ids, GameID: gameID})
	}
}
