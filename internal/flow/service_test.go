package flow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/session"
	"github.com/playmatatu/experiment/internal/steps"
	"github.com/playmatatu/experiment/internal/store"
)

// rowParams writes url_params onto the stored player rows the way the
// players table does: only while the column is still NULL.
type rowParams struct {
	*fakeEntities
	writes int
}

func (r *rowParams) SetURLParams(_ context.Context, playerID string, params map[string]string) (bool, error) {
	p, ok := r.players[playerID]
	if !ok || p.URLParams != nil {
		return false, nil
	}
	doc, err := json.Marshal(params)
	if err != nil {
		return false, err
	}
	p.URLParams = doc
	r.writes++
	return true, nil
}

func TestServiceCapturesThroughStoredRows(t *testing.T) {
	e := &rowParams{fakeEntities: &fakeEntities{
		open: true, openFound: true,
		players: map[string]*models.Player{
			"p1": {ID: "p1", GameID: ns("g1"), GameRef: ns("g1"), RoundRef: ns("r1"), StageRef: ns("s1")},
		},
		games: map[string]*models.Game{
			"g1": {ID: "g1", Status: store.GameStatusRunning, Treatment: []byte(`{"playerCount":1}`)},
		},
	}}
	sessions := &fakeSessions{consented: true, connected: true, playerID: "p1"}
	ps := progressSet{}
	svc := NewService(NewLoader(e, sessions),
		NewResolver(session.Flags{}, steps.Static(), steps.Static(), ps.factory, e))
	ctx := context.Background()

	r, err := svc.Render(ctx, "s1", "?workerId=w1&assignmentId=a1")
	if err != nil {
		t.Fatal(err)
	}
	if r.View.Screen != session.ScreenReady {
		t.Fatalf("screen = %s, want ready", r.View.Screen)
	}
	if got := store.SessionPlayer(e.players["p1"]).URLParams; got["workerId"] != "w1" || got["assignmentId"] != "a1" {
		t.Fatalf("stored params = %v", got)
	}

	// The reloaded row carries the params, so later renders never write.
	if _, err := svc.Render(ctx, "s1", "workerId=other"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Current(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if e.writes != 1 {
		t.Errorf("writes = %d, want 1", e.writes)
	}
	if got := store.SessionPlayer(e.players["p1"]).URLParams["workerId"]; got != "w1" {
		t.Errorf("workerId = %q, want w1", got)
	}
}

func TestServiceCurrentLeavesParamsUnset(t *testing.T) {
	e := &rowParams{fakeEntities: &fakeEntities{
		open: true, openFound: true,
		players: map[string]*models.Player{
			"p1": {ID: "p1", GameID: ns("g1"), GameRef: ns("g1"), RoundRef: ns("r1"), StageRef: ns("s1")},
		},
		games: map[string]*models.Game{
			"g1": {ID: "g1", Status: store.GameStatusRunning, Treatment: []byte(`{"playerCount":1}`)},
		},
	}}
	sessions := &fakeSessions{consented: true, connected: true, playerID: "p1"}
	ps := progressSet{}
	svc := NewService(NewLoader(e, sessions),
		NewResolver(session.Flags{}, steps.Static(), steps.Static(), ps.factory, e))

	if _, err := svc.Current(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if e.players["p1"].URLParams != nil || e.writes != 0 {
		t.Errorf("Current stored url params %s", e.players["p1"].URLParams)
	}
}
