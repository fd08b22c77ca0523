package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/store"
)

type fakeAdmin struct {
	open    *bool
	games   map[string]*models.Game
	players map[string][]models.Player
	ended   []string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{games: map[string]*models.Game{}, players: map[string][]models.Player{}}
}

func (f *fakeAdmin) SetExperimentOpen(_ context.Context, open bool) error {
	f.open = &open
	return nil
}

func (f *fakeAdmin) CreateGame(_ context.Context, t store.Treatment) (*models.Game, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	g := &models.Game{ID: "g1", Treatment: doc}
	f.games[g.ID] = g
	return g, nil
}

func (f *fakeAdmin) GetGame(_ context.Context, id string) (*models.Game, error) {
	g, ok := f.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g, nil
}

func (f *fakeAdmin) GamePlayers(_ context.Context, gameID string) ([]models.Player, error) {
	return f.players[gameID], nil
}

func (f *fakeAdmin) AssignPlayer(_ context.Context, playerID, gameID string) error {
	g, ok := f.games[gameID]
	if !ok || g.Status != "" {
		return store.ErrConflict
	}
	f.players[gameID] = append(f.players[gameID], models.Player{ID: playerID})
	return nil
}

func (f *fakeAdmin) StartGame(_ context.Context, gameID string) (*store.Placement, error) {
	g, ok := f.games[gameID]
	if !ok || g.Status != "" {
		return nil, store.ErrConflict
	}
	g.Status = store.GameStatusRunning
	pl := &store.Placement{GameID: gameID, RoundID: "r1", StageID: "s1"}
	for _, p := range f.players[gameID] {
		pl.PlayerIDs = append(pl.PlayerIDs, p.ID)
	}
	return pl, nil
}

func (f *fakeAdmin) EndGame(_ context.Context, gameID string) error {
	g, ok := f.games[gameID]
	if !ok {
		return store.ErrNotFound
	}
	g.HasEnded = true
	return nil
}

func (f *fakeAdmin) EndPlayer(_ context.Context, playerID string) error {
	if playerID == "missing" {
		return store.ErrNotFound
	}
	f.ended = append(f.ended, playerID)
	return nil
}

func adminRouter(s AdminStore, bus events.Publisher) *gin.Engine {
	r := gin.New()
	r.PUT("/globals/experiment-open", SetExperimentOpen(s, bus))
	r.POST("/games", CreateGame(s))
	r.GET("/games/:id", GetGameDetail(s))
	r.POST("/games/:id/players", AssignPlayer(s, bus))
	r.POST("/games/:id/start", StartGame(s, bus))
	r.POST("/games/:id/end", EndGame(s, bus))
	r.POST("/players/:id/end", EndPlayer(s, bus))
	return r
}

func TestSetExperimentOpen(t *testing.T) {
	s := newFakeAdmin()
	bus := &recorder{}
	r := adminRouter(s, bus)

	if w := do(r, http.MethodPut, "/globals/experiment-open", "", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing open: %d", w.Code)
	}
	if w := do(r, http.MethodPut, "/globals/experiment-open", "", `{"open":false}`); w.Code != http.StatusOK {
		t.Fatalf("close: %d", w.Code)
	}
	if s.open == nil || *s.open {
		t.Errorf("open = %v, want false", s.open)
	}
	if len(bus.events) != 1 || !bus.events[0].All {
		t.Errorf("events = %+v, want one broadcast", bus.events)
	}
}

func TestGameLifecycle(t *testing.T) {
	s := newFakeAdmin()
	bus := &recorder{}
	r := adminRouter(s, bus)

	if w := do(r, http.MethodPost, "/games", "", `{"player_count":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("zero headcount: %d", w.Code)
	}
	w := do(r, http.MethodPost, "/games", "", `{"player_count":2}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"player_count":2`) {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodPost, "/games/g1/players", "", `{"player_id":"p1"}`); w.Code != http.StatusOK {
		t.Fatalf("assign: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/games/nope/players", "", `{"player_id":"p1"}`); w.Code != http.StatusConflict {
		t.Errorf("assign to missing game: %d", w.Code)
	}

	if w := do(r, http.MethodPost, "/games/g1/start", "", ""); w.Code != http.StatusOK {
		t.Fatalf("start: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/games/g1/start", "", ""); w.Code != http.StatusConflict {
		t.Errorf("second start: %d", w.Code)
	}

	w = do(r, http.MethodGet, "/games/g1", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"player_ids":["p1"]`) {
		t.Errorf("detail: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/games/nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing detail: %d", w.Code)
	}

	if w := do(r, http.MethodPost, "/games/g1/end", "", ""); w.Code != http.StatusOK {
		t.Fatalf("end: %d", w.Code)
	}
	if !s.games["g1"].HasEnded {
		t.Error("game not ended")
	}

	want := []string{events.TypePlayerUpdated, events.TypeGameUpdated, events.TypeGameUpdated}
	if got := bus.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEndPlayer(t *testing.T) {
	s := newFakeAdmin()
	bus := &recorder{}
	r := adminRouter(s, bus)

	if w := do(r, http.MethodPost, "/players/missing/end", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/players/p1/end", "", ""); w.Code != http.StatusOK {
		t.Fatalf("end: %d", w.Code)
	}
	if len(s.ended) != 1 || s.ended[0] != "p1" {
		t.Errorf("ended = %v", s.ended)
	}
	if len(bus.events) != 1 || bus.events[0].Type != events.TypePlayerEnded {
		t.Errorf("events = %+v", bus.events)
	}
}
