package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/flow"
	"github.com/playmatatu/experiment/internal/middleware"
	"github.com/playmatatu/experiment/internal/models"
	"github.com/playmatatu/experiment/internal/session"
	"github.com/playmatatu/experiment/internal/steps"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memState struct {
	mu        sync.Mutex
	consented map[string]bool
	resolving map[string]bool
	bound     map[string]string
}

func newMemState() *memState {
	return &memState{consented: map[string]bool{}, resolving: map[string]bool{}, bound: map[string]string{}}
}

func (m *memState) Consent(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consented[sid] = true
	return nil
}

func (m *memState) Consented(_ context.Context, sid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consented[sid], nil
}

func (m *memState) BeginResolving(_ context.Context, sid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolving[sid] {
		return false, nil
	}
	m.resolving[sid] = true
	return true, nil
}

func (m *memState) EndResolving(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resolving, sid)
	return nil
}

func (m *memState) BindPlayer(_ context.Context, sid, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound[sid] = playerID
	return nil
}

type memPlayers struct {
	byIdentifier map[string]*models.Player
}

func (m *memPlayers) GetOrCreatePlayer(_ context.Context, identifier string) (*models.Player, bool, error) {
	if p, ok := m.byIdentifier[identifier]; ok {
		return p, false, nil
	}
	p := &models.Player{ID: "p-" + identifier, Identifier: identifier}
	m.byIdentifier[identifier] = p
	return p, true, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubViewer struct {
	view         flow.View
	lastQuery    string
	advanceErr   error
	renderErr    error
	renderCalls  int
	currentCalls int
}

func (v *stubViewer) Render(_ context.Context, _ string, rawQuery string) (flow.Rendered, error) {
	v.renderCalls++
	v.lastQuery = rawQuery
	if v.renderErr != nil {
		return flow.Rendered{}, v.renderErr
	}
	return flow.Rendered{View: v.view}, nil
}

func (v *stubViewer) Current(context.Context, string) (flow.Rendered, error) {
	v.currentCalls++
	return flow.Rendered{View: v.view}, nil
}

func (v *stubViewer) Advance(context.Context, string, string) (string, error) {
	return "p1", v.advanceErr
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionRouter(iss *auth.Issuer, state SessionState, players PlayerCreator, v Viewer, bus events.Publisher, requireConsent bool) *gin.Engine {
	r := gin.New()
	r.POST("/session", CreateSession(iss))
	g := r.Group("", middleware.RequireSession(iss))
	g.POST("/consent", GiveConsent(state, bus))
	g.POST("/player", CreatePlayer(state, players, bus, requireConsent))
	g.GET("/view", GetView(v))
	g.POST("/steps/advance", AdvanceStep(v, bus))
	return r
}

func newSession(t *testing.T, r *gin.Engine) (token, sid string) {
	t.Helper()
	w := do(r, http.MethodPost, "/session", "", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d", w.Code)
	}
	var resp struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token, resp.SessionID
}

func TestCreatePlayerRequiresConsent(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	state := newMemState()
	players := &memPlayers{byIdentifier: map[string]*models.Player{}}
	bus := &recorder{}
	r := sessionRouter(iss, state, players, &stubViewer{}, bus, true)
	token, sid := newSession(t, r)

	if w := do(r, http.MethodPost, "/player", token, `{"identifier":"alice"}`); w.Code != http.StatusForbidden {
		t.Fatalf("before consent: %d", w.Code)
	}

	if w := do(r, http.MethodPost, "/consent", token, ""); w.Code != http.StatusOK {
		t.Fatalf("consent: %d", w.Code)
	}

	w := do(r, http.MethodPost, "/player", token, `{"identifier":"alice"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		PlayerID string `json:"player_id"`
		Created  bool   `json:"created"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PlayerID != "p-alice" || !resp.Created {
		t.Errorf("response = %+v", resp)
	}
	if state.bound[sid] != "p-alice" {
		t.Errorf("session bound to %q", state.bound[sid])
	}
	if state.resolving[sid] {
		t.Error("resolving flag left set")
	}

	want := []string{events.TypeConsent, events.TypePlayerCreated, events.TypePlayerCreated}
	got := bus.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestCreatePlayerResumesExisting(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	players := &memPlayers{byIdentifier: map[string]*models.Player{
		"bob": {ID: "p-bob", Identifier: "bob"},
	}}
	r := sessionRouter(iss, newMemState(), players, &stubViewer{}, nil, false)
	token, _ := newSession(t, r)

	w := do(r, http.MethodPost, "/player", token, `{"identifier":"  bob "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resume: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"created":false`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreatePlayerValidation(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	r := sessionRouter(iss, newMemState(), &memPlayers{byIdentifier: map[string]*models.Player{}}, &stubViewer{}, nil, false)
	token, _ := newSession(t, r)

	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"blank", `{"identifier":"   "}`},
		{"too long", `{"identifier":"` + strings.Repeat("x", maxIdentifierLen+1) + `"}`},
		{"not json", `identifier=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, http.MethodPost, "/player", token, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCreatePlayerWhileResolving(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	state := newMemState()
	r := sessionRouter(iss, state, &memPlayers{byIdentifier: map[string]*models.Player{}}, &stubViewer{}, nil, false)
	token, sid := newSession(t, r)

	state.resolving[sid] = true
	if w := do(r, http.MethodPost, "/player", token, `{"identifier":"carol"}`); w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestGetViewStripsToken(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	v := &stubViewer{view: flow.View{Screen: session.ScreenConsent, Action: session.ActionConsent}}
	r := sessionRouter(iss, newMemState(), nil, v, nil, true)
	token, _ := newSession(t, r)

	w := do(r, http.MethodGet, "/view?token="+token+"&workerId=w1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if v.lastQuery != "workerId=w1" {
		t.Errorf("query passed to render = %q", v.lastQuery)
	}
	var got flow.View
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Screen != session.ScreenConsent || got.Action != session.ActionConsent {
		t.Errorf("view = %+v", got)
	}

	v.renderErr = errors.New("down")
	if w := do(r, http.MethodGet, "/view", token, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("render failure: %d", w.Code)
	}
}

func TestAdvanceStep(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	v := &stubViewer{view: flow.View{Screen: session.ScreenIntroStep, Step: "quiz"}}
	bus := &recorder{}
	r := sessionRouter(iss, newMemState(), nil, v, bus, false)
	token, _ := newSession(t, r)

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad sequence", `{"sequence":"middle"}`, nil, http.StatusBadRequest},
		{"not on step", `{"sequence":"exit"}`, flow.ErrNotOnStep, http.StatusConflict},
		{"already done", `{"sequence":"intro"}`, steps.ErrDone, http.StatusConflict},
		{"store failure", `{"sequence":"intro"}`, errors.New("redis down"), http.StatusInternalServerError},
		{"advanced", `{"sequence":"intro"}`, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v.advanceErr = tt.err
			if w := do(r, http.MethodPost, "/steps/advance", token, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	if got := bus.types(); len(got) != 1 || got[0] != events.TypeSteps {
		t.Errorf("events = %v", got)
	}
	// The response view must not go through the capturing render, which
	// would store an empty query on the player.
	if v.renderCalls != 0 || v.currentCalls != 1 {
		t.Errorf("render calls = %d, current calls = %d, want 0 and 1", v.renderCalls, v.currentCalls)
	}
}
