package flow

import (
	"context"
	"errors"
	"log"

	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/session"
	"github.com/playmatatu/experiment/internal/store"
)

// Entities is the read side of the entity store.
type Entities interface {
	Ping(ctx context.Context) error
	ExperimentOpen(ctx context.Context) (open, found bool, err error)
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	GetGame(ctx context.Context, id string) (*models.Game, error)
	GetRound(ctx context.Context, id string) (*models.Round, error)
	GetStage(ctx context.Context, id string) (*models.Stage, error)
	GamePlayers(ctx context.Context, gameID string) ([]models.Player, error)
}

// Sessions is the per-session state source.
type Sessions interface {
	Ping(ctx context.Context) error
	Consented(ctx context.Context, sid string) (bool, error)
	Resolving(ctx context.Context, sid string) (bool, error)
	PlayerFor(ctx context.Context, sid string) (string, error)
	ParticipantConnected(ctx context.Context, sid string) (bool, error)
}

// Loader assembles a snapshot for one session. Load never fails: a source
// that errors leaves its field Unloaded, and an unreachable backend reports
// the transport as disconnected.
type Loader struct {
	entities Entities
	sessions Sessions
}

func NewLoader(e Entities, s Sessions) *Loader {
	return &Loader{entities: e, sessions: s}
}

func (l *Loader) Load(ctx context.Context, sid string) session.Snapshot {
	snap := session.Snapshot{
		Globals: session.Unloaded[session.Globals](),
		Player:  session.Unloaded[session.Player](),
		Game:    session.Unloaded[session.Game](),
		Round:   session.Unloaded[session.Round](),
		Stage:   session.Unloaded[session.Stage](),
		Players: session.Unloaded[[]session.Player](),
	}

	if err := l.sessions.Ping(ctx); err != nil {
		log.Printf("[GATE] session state unreachable: %v", err)
		return snap
	}
	if err := l.entities.Ping(ctx); err != nil {
		log.Printf("[GATE] entity store unreachable: %v", err)
		return snap
	}
	snap.Conn.Transport = true

	var err error
	if snap.Conn.Resolving, err = l.sessions.Resolving(ctx, sid); err != nil {
		snap.Conn.Transport = false
		return snap
	}
	if snap.Conn.Participant, err = l.sessions.ParticipantConnected(ctx, sid); err != nil {
		snap.Conn.Transport = false
		return snap
	}
	if snap.Consented, err = l.sessions.Consented(ctx, sid); err != nil {
		snap.Conn.Transport = false
		return snap
	}

	if open, found, err := l.entities.ExperimentOpen(ctx); err != nil {
		log.Printf("[GATE] load globals: %v", err)
	} else if found {
		snap.Globals = session.Present(session.Globals{ExperimentOpen: open})
	} else {
		snap.Globals = session.Absent[session.Globals]()
	}

	playerID, err := l.sessions.PlayerFor(ctx, sid)
	if err != nil {
		snap.Conn.Transport = false
		return snap
	}
	snap.HasPlayer = playerID != ""
	if !snap.HasPlayer {
		snap.Player = session.Absent[session.Player]()
		snap.Game = session.Absent[session.Game]()
		return snap
	}

	p, err := l.entities.GetPlayer(ctx, playerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		snap.Player = session.Absent[session.Player]()
		return snap
	case err != nil:
		log.Printf("[GATE] load player %s: %v", playerID, err)
		return snap
	}
	player := store.SessionPlayer(p)
	snap.Player = session.Present(player)

	snap.Round = load(ctx, player.RoundRef, l.entities.GetRound, func(r *models.Round) session.Round {
		return session.Round{ID: r.ID}
	})
	snap.Stage = load(ctx, player.StageRef, l.entities.GetStage, func(s *models.Stage) session.Stage {
		return session.Stage{ID: s.ID}
	})
	snap.Game = load(ctx, player.GameID, l.entities.GetGame, func(g *models.Game) session.Game {
		return store.SessionGame(g)
	})

	if snap.Game.Present() {
		rows, err := l.entities.GamePlayers(ctx, player.GameID)
		if err != nil {
			log.Printf("[GATE] load players of game %s: %v", player.GameID, err)
		} else {
			// Ended players have left the game and are never placed.
			players := make([]session.Player, 0, len(rows))
			for i := range rows {
				if rows[i].Ended {
					continue
				}
				players = append(players, store.SessionPlayer(&rows[i]))
			}
			snap.Players = session.Present(players)
		}
	} else if snap.Game.Loaded() {
		snap.Players = session.Absent[[]session.Player]()
	}
	return snap
}

// load fetches an optional reference. An empty id is Absent, a missing row
// is Absent, and any other failure leaves the field Unloaded.
func load[M any, T any](ctx context.Context, id string, get func(context.Context, string) (*M, error), conv func(*M) T) session.Field[T] {
	if id == "" {
		return session.Absent[T]()
	}
	row, err := get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return session.Absent[T]()
	}
	if err != nil {
		log.Printf("[GATE] load %s: %v", id, err)
		return session.Unloaded[T]()
	}
	return session.Present(conv(row))
}
