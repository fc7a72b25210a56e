package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/scorecard"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

type gamesFixture struct {
	mux   *http.ServeMux
	store *storage.MockStorage
	moves *mockMoves
	runs  *mockRuns
	game  *state.Snapshot
}

func setupGames(t *testing.T) *gamesFixture {
	t.Helper()
	scn := coldWar(t)
	scn.Players = append(scn.Players, scenario.PlayerSpec{Name: "Delhi", Type: scenario.PlayerHuman, Controls: "India"})

	store := storage.NewMockStorage()
	store.AddScenario("cold_war.json", scn)

	snap := state.New(scn).Snapshot()
	if err := store.SaveGame(t.Context(), snap); err != nil {
		t.Fatal(err)
	}

	f := &gamesFixture{
		mux:   http.NewServeMux(),
		store: store,
		moves: &mockMoves{prompts: map[string]string{}},
		runs:  &mockRuns{},
		game:  snap,
	}
	NewGamesHandler(&mockGames{store: store}, store, f.moves, f.runs, testLogger()).Register(f.mux)
	return f
}

func (f *gamesFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f *gamesFixture) path(suffix string) string {
	return "/v1/games/" + f.game.ID.String() + suffix
}

func TestGamesHandler_Create(t *testing.T) {
	f := setupGames(t)

	rr := f.do(http.MethodPost, "/v1/games", `{"scenario":"cold_war.json"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", rr.Header().Get("Content-Type"))
	}

	var resp GameSummary
	decode(t, rr, &resp)
	if resp.ID == uuid.Nil {
		t.Error("Expected non-nil game ID")
	}
	if resp.Scenario != "Cold War" || resp.MaxTurns != 12 || resp.Turn != 0 {
		t.Errorf("Unexpected summary: %+v", resp)
	}
	if snap, _ := f.store.LoadGame(t.Context(), resp.ID); snap == nil {
		t.Error("Expected new game to be saved")
	}
}

func TestGamesHandler_CreateErrors(t *testing.T) {
	f := setupGames(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"invalid json", `{"scenario":`, http.StatusBadRequest},
		{"missing scenario", `{}`, http.StatusBadRequest},
		{"negative max turns", `{"scenario":"cold_war.json","max_turns":-1}`, http.StatusBadRequest},
		{"path in scenario", `{"scenario":"../cold_war.json"}`, http.StatusBadRequest},
		{"unknown scenario", `{"scenario":"nope.json"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/v1/games", tt.body)
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			var resp ErrorResponse
			decode(t, rr, &resp)
			if resp.Error == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestGamesHandler_ReadListDelete(t *testing.T) {
	f := setupGames(t)

	rr := f.do(http.MethodGet, f.path(""), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var snap state.Snapshot
	decode(t, rr, &snap)
	if snap.ID != f.game.ID {
		t.Errorf("Expected game %s, got %s", f.game.ID, snap.ID)
	}

	rr = f.do(http.MethodGet, "/v1/games", "")
	var list []GameSummary
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != f.game.ID {
		t.Errorf("Expected one listed game, got %+v", list)
	}

	if rr := f.do(http.MethodGet, "/v1/games/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/v1/games/"+uuid.NewString(), ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown game, got %d", rr.Code)
	}

	if rr := f.do(http.MethodDelete, f.path(""), ""); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, f.path(""), ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rr.Code)
	}
}

func TestGamesHandler_Scorecard(t *testing.T) {
	f := setupGames(t)

	rr := f.do(http.MethodGet, f.path("/scorecard"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var card scorecard.Payload
	decode(t, rr, &card)
	if card.Type != scenario.RenderText || !strings.Contains(card.Text, "USA") {
		t.Errorf("Unexpected text scorecard: %+v", card)
	}

	rr = f.do(http.MethodGet, f.path("/scorecard?format=json"), "")
	decode(t, rr, &card)
	if card.Type != scenario.RenderJSON || len(card.Entries) == 0 {
		t.Errorf("Unexpected json scorecard: %+v", card)
	}
}

func TestGamesHandler_Run(t *testing.T) {
	f := setupGames(t)

	rr := f.do(http.MethodPost, f.path("/run"), `{"turns":3}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp AcceptedResponse
	decode(t, rr, &resp)
	if resp.RequestID != "req-1" || resp.GameID != f.game.ID {
		t.Errorf("Unexpected response: %+v", resp)
	}

	if rr := f.do(http.MethodPost, f.path("/run"), ""); rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 for empty body, got %d", rr.Code)
	}
	if len(f.runs.enqueued) != 2 || f.runs.enqueued[0].Turns != 3 || f.runs.enqueued[1].Turns != 1 {
		t.Errorf("Unexpected runs: %+v", f.runs.enqueued)
	}

	if rr := f.do(http.MethodPost, f.path("/run"), `{"turns":0}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero turns, got %d", rr.Code)
	}

	f.runs.err = errors.New("redis down")
	if rr := f.do(http.MethodPost, f.path("/run"), ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on queue error, got %d", rr.Code)
	}

	f.game.Ended = true
	f.game.EndReason = "stopped"
	if err := f.store.SaveGame(t.Context(), f.game); err != nil {
		t.Fatal(err)
	}
	if rr := f.do(http.MethodPost, f.path("/run"), ""); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for ended game, got %d", rr.Code)
	}
}

func TestGamesHandler_NoQueues(t *testing.T) {
	f := setupGames(t)
	mux := http.NewServeMux()
	NewGamesHandler(&mockGames{store: f.store}, f.store, nil, nil, testLogger()).Register(mux)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, f.path("/run"), ""},
		{http.MethodPost, f.path("/moves"), `{"player":"Delhi","text":"x"}`},
		{http.MethodGet, f.path("/prompt?player=Delhi"), ""},
	} {
		rr := httptest.NewRecorder()
		var req *http.Request
		if tc.body == "" {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		} else {
			req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		}
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestGamesHandler_Moves(t *testing.T) {
	f := setupGames(t)

	rr := f.do(http.MethodPost, f.path("/moves"), `{"player":"delhi","text":"Stay non-aligned"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(f.moves.enqueued) != 1 {
		t.Fatalf("Expected one move, got %d", len(f.moves.enqueued))
	}
	got := f.moves.enqueued[0]
	if got.Player != "Delhi" || got.GameID != f.game.ID || got.Text != "Stay non-aligned" {
		t.Errorf("Unexpected move: %+v", got)
	}

	tests := []struct {
		name string
		body string
	}{
		{"ai player", `{"player":"Washington","text":"x"}`},
		{"unknown player", `{"player":"Paris","text":"x"}`},
		{"empty text", `{"player":"Delhi","text":"  "}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := f.do(http.MethodPost, f.path("/moves"), tt.body); rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGamesHandler_Prompt(t *testing.T) {
	f := setupGames(t)
	f.moves.prompts["delhi"] = "Turn 1. What does India do?"

	rr := f.do(http.MethodGet, f.path("/prompt?player=Delhi"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp PromptResponse
	decode(t, rr, &resp)
	if resp.Prompt != "Turn 1. What does India do?" {
		t.Errorf("Unexpected prompt: %q", resp.Prompt)
	}

	if rr := f.do(http.MethodGet, f.path("/prompt"), ""); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without player, got %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, f.path("/prompt?player=Washington"), ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no pending prompt, got %d", rr.Code)
	}
}
