// Package store persists players, games, rounds, stages and globals in
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/session"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: state conflict")
)

// GameStatusRunning is written when a game leaves the lobby.
const GameStatusRunning = "running"

const globalExperimentOpen = "experiment_open"

// Treatment is the JSON document stored with each game.
type Treatment struct {
	PlayerCount *int `json:"playerCount,omitempty"`
}

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const playerColumns = `id, identifier, ended, game_id, game_ref, round_ref, stage_ref, url_params, created_at, ended_at`

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	err := s.db.GetContext(ctx, &p, `SELECT `+playerColumns+` FROM players WHERE id=$1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetOrCreatePlayer returns the player for identifier, creating it on first
// use. created reports whether this call inserted the row.
func (s *Store) GetOrCreatePlayer(ctx context.Context, identifier string) (p *models.Player, created bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, identifier, created_at) VALUES ($1, $2, NOW()) ON CONFLICT (identifier) DO NOTHING`,
		uuid.NewString(), identifier)
	if err != nil {
		return nil, false, fmt.Errorf("insert player: %w", err)
	}
	n, _ := res.RowsAffected()

	var row models.Player
	if err := s.db.GetContext(ctx, &row, `SELECT `+playerColumns+` FROM players WHERE identifier=$1`, identifier); err != nil {
		return nil, false, notFound(err)
	}
	return &row, n > 0, nil
}

// SetURLParams stores params unless the player already has some. written
// is false when a previous capture won.
func (s *Store) SetURLParams(ctx context.Context, playerID string, params map[string]string) (written bool, err error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET url_params=$1 WHERE id=$2 AND url_params IS NULL`, payload, playerID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EndPlayer marks the player finished. Ending twice is a no-op.
func (s *Store) EndPlayer(ctx context.Context, playerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET ended=TRUE, ended_at=COALESCE(ended_at, NOW()) WHERE id=$1`, playerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GamePlayers lists the players assigned to a game in joining order.
func (s *Store) GamePlayers(ctx context.Context, gameID string) ([]models.Player, error) {
	var players []models.Player
	err := s.db.SelectContext(ctx, &players,
		`SELECT `+playerColumns+` FROM players WHERE game_id=$1 ORDER BY created_at, id`, gameID)
	return players, err
}

func (s *Store) CreateGame(ctx context.Context, t Treatment) (*models.Game, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var g models.Game
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO games (id, treatment, created_at) VALUES ($1, $2, NOW())
		 RETURNING id, status, has_ended, treatment, created_at, started_at, ended_at`,
		uuid.NewString(), doc).StructScan(&g)
	if err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	return &g, nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var g models.Game
	err := s.db.GetContext(ctx, &g,
		`SELECT id, status, has_ended, treatment, created_at, started_at, ended_at FROM games WHERE id=$1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (*models.Round, error) {
	var r models.Round
	if err := s.db.GetContext(ctx, &r, `SELECT id, game_id, idx, created_at FROM rounds WHERE id=$1`, id); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	var st models.Stage
	if err := s.db.GetContext(ctx, &st, `SELECT id, round_id, name, created_at FROM stages WHERE id=$1`, id); err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// AssignPlayer attaches an unassigned player to a game that has not started.
func (s *Store) AssignPlayer(ctx context.Context, playerID, gameID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE players SET game_id=$1
		WHERE id=$2 AND game_id IS NULL AND ended=FALSE
		  AND EXISTS (SELECT 1 FROM games WHERE id=$1 AND status='' AND has_ended=FALSE)`,
		gameID, playerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// Placement is the result of starting a game.
type Placement struct {
	GameID    string
	RoundID   string
	StageID   string
	PlayerIDs []string
}

// StartGame moves a lobby game to running, creates its first round and
// stage and places every assigned player into them.
func (s *Store) StartGame(ctx context.Context, gameID string) (*Placement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET status=$1, started_at=NOW() WHERE id=$2 AND status='' AND has_ended=FALSE`,
		GameStatusRunning, gameID)
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}

	pl := &Placement{GameID: gameID, RoundID: uuid.NewString(), StageID: uuid.NewString()}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rounds (id, game_id, idx, created_at) VALUES ($1, $2, 0, NOW())`, pl.RoundID, gameID); err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stages (id, round_id, name, created_at) VALUES ($1, $2, 'main', NOW())`, pl.StageID, pl.RoundID); err != nil {
		return nil, fmt.Errorf("insert stage: %w", err)
	}
	err = tx.SelectContext(ctx, &pl.PlayerIDs, `
		UPDATE players SET game_ref=$1, round_ref=$2, stage_ref=$3
		WHERE game_id=$1 AND ended=FALSE
		RETURNING id`, gameID, pl.RoundID, pl.StageID)
	if err != nil {
		return nil, fmt.Errorf("place players: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pl, nil
}

// EndGame flags the game as ended. Players are acknowledged separately.
func (s *Store) EndGame(ctx context.Context, gameID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET has_ended=TRUE, ended_at=COALESCE(ended_at, NOW()) WHERE id=$1`, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EndedGamePlayer is a player ended because its game ended.
type EndedGamePlayer struct {
	PlayerID string `db:"id"`
	GameID   string `db:"game_id"`
}

// AcknowledgeEndedGames ends every player still active in an ended game.
func (s *Store) AcknowledgeEndedGames(ctx context.Context) ([]EndedGamePlayer, error) {
	var ended []EndedGamePlayer
	err := s.db.SelectContext(ctx, &ended, `
		UPDATE players SET ended=TRUE, ended_at=NOW()
		WHERE ended=FALSE
		  AND game_id IN (SELECT id FROM games WHERE has_ended=TRUE)
		RETURNING id, game_id`)
	return ended, err
}

// Assignment is a batch of players attached to one game.
type Assignment struct {
	GameID    string
	PlayerIDs []string
	Full      bool
}

type openGame struct {
	ID        string `db:"id"`
	Treatment []byte `db:"treatment"`
	Assigned  int    `db:"assigned"`
}

// assignedCount counts the seats taken in game g. Ended players free their
// seat.
const assignedCount = `(SELECT COUNT(*) FROM players p WHERE p.game_id = g.id AND p.ended = FALSE)`

// FullLobbies lists lobby games holding at least their declared headcount.
// Games without a headcount are started by hand.
func (s *Store) FullLobbies(ctx context.Context) ([]string, error) {
	var games []openGame
	err := s.db.SelectContext(ctx, &games, `
		SELECT g.id, g.treatment, `+assignedCount+` AS assigned
		FROM games g
		WHERE g.status = '' AND g.has_ended = FALSE
		ORDER BY g.created_at`)
	if err != nil {
		return nil, fmt.Errorf("select lobbies: %w", err)
	}
	var full []string
	for _, g := range games {
		if n := DecodeTreatment(g.Treatment).PlayerCount; n != nil && g.Assigned > 0 && g.Assigned >= *n {
			full = append(full, g.ID)
		}
	}
	return full, nil
}

// AssignWaiting fills lobby games with unassigned players in arrival order.
// Games without a declared headcount are left to manual assignment.
func (s *Store) AssignWaiting(ctx context.Context) ([]Assignment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var games []openGame
	err = tx.SelectContext(ctx, &games, `
		SELECT g.id, g.treatment, `+assignedCount+` AS assigned
		FROM games g
		WHERE g.status = '' AND g.has_ended = FALSE
		ORDER BY g.created_at
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, fmt.Errorf("select open games: %w", err)
	}

	var out []Assignment
	for _, g := range games {
		count := DecodeTreatment(g.Treatment).PlayerCount
		if count == nil {
			continue
		}
		free := *count - g.Assigned
		if free <= 0 {
			continue
		}

		var ids []string
		err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM players
			WHERE game_id IS NULL AND ended = FALSE
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1`, free)
		if err != nil {
			return nil, fmt.Errorf("claim players: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE players SET game_id=$1 WHERE id = ANY($2)`, g.ID, pq.Array(ids)); err != nil {
			return nil, fmt.Errorf("assign players: %w", err)
		}
		out = append(out, Assignment{GameID: g.ID, PlayerIDs: ids, Full: len(ids) == free})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExperimentOpen reads the experiment_open global. found is false when the
// global has never been set.
func (s *Store) ExperimentOpen(ctx context.Context) (open, found bool, err error) {
	var g models.Global
	err = s.db.GetContext(ctx, &g, `SELECT key, value, updated_at FROM globals WHERE key=$1`, globalExperimentOpen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	open, err = strconv.ParseBool(g.Value)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s value %q: %w", globalExperimentOpen, g.Value, err)
	}
	return open, true, nil
}

func (s *Store) SetExperimentOpen(ctx context.Context, open bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO globals (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		globalExperimentOpen, strconv.FormatBool(open))
	return err
}

// DecodeTreatment parses a stored treatment. A malformed document decodes
// as an empty treatment.
func DecodeTreatment(doc []byte) Treatment {
	var t Treatment
	if len(doc) == 0 {
		return t
	}
	if err := json.Unmarshal(doc, &t); err != nil {
		log.Printf("[DB] invalid treatment document: %v", err)
		return Treatment{}
	}
	return t
}

// SessionPlayer converts a stored player for the gates.
func SessionPlayer(p *models.Player) session.Player {
	sp := session.Player{
		ID:         p.ID,
		Identifier: p.Identifier,
		Ended:      p.Ended,
		GameID:     p.GameID.String,
		GameRef:    p.GameRef.String,
		RoundRef:   p.RoundRef.String,
		StageRef:   p.StageRef.String,
	}
	if p.URLParams != nil {
		params := map[string]string{}
		if err := json.Unmarshal(p.URLParams, &params); err != nil {
			log.Printf("[DB] invalid url_params for player %s: %v", p.ID, err)
		}
		sp.URLParams = params
	}
	return sp
}

// SessionGame converts a stored game for the gates.
func SessionGame(g *models.Game) session.Game {
	return session.Game{
		ID:        g.ID,
		Status:    g.Status,
		HasEnded:  g.HasEnded,
		Treatment: session.Treatment{PlayerCount: DecodeTreatment(g.Treatment).PlayerCount},
	}
}
