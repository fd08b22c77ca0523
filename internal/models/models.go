package models

import (
	"database/sql"
	"time"
)

// Player is a participant record.
type Player struct {
	ID         string         `db:"id" json:"id"`
	Identifier string         `db:"identifier" json:"identifier"`
	Ended      bool           `db:"ended" json:"ended"`
	GameID     sql.NullString `db:"game_id" json:"game_id,omitempty"`
	GameRef    sql.NullString `db:"game_ref" json:"game_ref,omitempty"`
	RoundRef   sql.NullString `db:"round_ref" json:"round_ref,omitempty"`
	StageRef   sql.NullString `db:"stage_ref" json:"stage_ref,omitempty"`
	URLParams  []byte         `db:"url_params" json:"-"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	EndedAt    sql.NullTime   `db:"ended_at" json:"ended_at,omitempty"`
}

// Game is a game session players are assigned to.
type Game struct {
	ID        string       `db:"id" json:"id"`
	Status    string       `db:"status" json:"status"`
	HasEnded  bool         `db:"has_ended" json:"has_ended"`
	Treatment []byte       `db:"treatment" json:"-"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	StartedAt sql.NullTime `db:"started_at" json:"started_at,omitempty"`
	EndedAt   sql.NullTime `db:"ended_at" json:"ended_at,omitempty"`
}

// Round belongs to a game.
type Round struct {
	ID        string    `db:"id" json:"id"`
	GameID    string    `db:"game_id" json:"game_id"`
	Index     int       `db:"idx" json:"index"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stage belongs to a round.
type Stage struct {
	ID        string    `db:"id" json:"id"`
	RoundID   string    `db:"round_id" json:"round_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Global is one experiment-wide setting.
type Global struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
