package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/queue"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/scorecard"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

// GameService starts new games. *app.App satisfies it.
type GameService interface {
	LoadScenario(ctx context.Context, ref string) (*scenario.Scenario, error)
	NewGame(ctx context.Context, scn *scenario.Scenario, maxTurns int) (*engine.Engine, error)
}

// MoveService accepts human moves and exposes pending prompts.
type MoveService interface {
	Enqueue(ctx context.Context, req *chat.MoveRequest) error
	Prompt(ctx context.Context, gameID uuid.UUID, player string) (string, error)
}

// RunService queues turns for the workers.
type RunService interface {
	Enqueue(ctx context.Context, req *queue.RunRequest) error
}

type CreateGameRequest struct {
	Scenario string `json:"scenario"`
	MaxTurns int    `json:"max_turns,omitempty"`
}

type RunGameRequest struct {
	Turns int `json:"turns"`
}

type MoveBody struct {
	Player string `json:"player"`
	Text   string `json:"text"`
}

type GameSummary struct {
	ID        uuid.UUID `json:"id"`
	Scenario  string    `json:"scenario"`
	Turn      int       `json:"turn"`
	MaxTurns  int       `json:"max_turns,omitempty"`
	Ended     bool      `json:"ended"`
	EndReason string    `json:"end_reason,omitempty"`
}

type AcceptedResponse struct {
	RequestID string    `json:"request_id,omitempty"`
	GameID    uuid.UUID `json:"game_id"`
	Status    string    `json:"status"`
}

type PromptResponse struct {
	Player string `json:"player"`
	Prompt string `json:"prompt"`
}

type GamesHandler struct {
	games   GameService
	storage storage.Storage
	moves   MoveService
	runs    RunService
	logger  *slog.Logger
}

func NewGamesHandler(games GameService, storage storage.Storage, moves MoveService, runs RunService, logger *slog.Logger) *GamesHandler {
	return &GamesHandler{
		games:   games,
		storage: storage,
		moves:   moves,
		runs:    runs,
		logger:  logger,
	}
}

// Register adds the game routes to mux.
func (h *GamesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/games", h.handleCreate)
	mux.HandleFunc("GET /v1/games", h.handleList)
	mux.HandleFunc("GET /v1/games/{id}", h.handleRead)
	mux.HandleFunc("DELETE /v1/games/{id}", h.handleDelete)
	mux.HandleFunc("GET /v1/games/{id}/scorecard", h.handleScorecard)
	mux.HandleFunc("POST /v1/games/{id}/run", h.handleRun)
	mux.HandleFunc("POST /v1/games/{id}/moves", h.handleMove)
	mux.HandleFunc("GET /v1/games/{id}/prompt", h.handlePrompt)
}

func (h *GamesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	req.Scenario = strings.TrimSpace(req.Scenario)
	if req.Scenario == "" {
		writeError(w, h.logger, http.StatusBadRequest, "scenario is required")
		return
	}
	if req.MaxTurns < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "max_turns cannot be negative")
		return
	}
	if strings.Contains(req.Scenario, "..") || strings.ContainsAny(req.Scenario, `/\`) {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid scenario")
		return
	}

	scn, err := h.games.LoadScenario(r.Context(), req.Scenario)
	if err != nil {
		if errors.Is(err, storage.ErrScenarioNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Scenario not found")
			return
		}
		h.logger.Warn("Failed to load scenario", "scenario", req.Scenario, "error", err)
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	eng, err := h.games.NewGame(r.Context(), scn, req.MaxTurns)
	if err != nil {
		h.logger.Error("Failed to create game", "scenario", req.Scenario, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create game")
		return
	}

	h.logger.Info("Game created", "game_id", eng.ID().String(), "scenario", scn.Name)
	writeJSON(w, h.logger, http.StatusCreated, GameSummary{
		ID:       eng.ID(),
		Scenario: scn.Name,
		Turn:     eng.Turn(),
		MaxTurns: eng.MaxTurns(),
	})
}

func (h *GamesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.storage.ListGames(r.Context())
	if err != nil {
		h.logger.Error("Failed to list games", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list games")
		return
	}

	out := make([]GameSummary, 0, len(ids))
	for _, id := range ids {
		snap, err := h.storage.LoadGame(r.Context(), id)
		if err != nil || snap == nil {
			// Expired or corrupt saves are skipped
			continue
		}
		out = append(out, summarize(snap))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

func (h *GamesHandler) handleRead(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadGame(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snap)
}

func (h *GamesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.gameID(w, r)
	if !ok {
		return
	}
	if err := h.storage.DeleteGame(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete game", "game_id", id.String(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete game")
		return
	}
	h.logger.Info("Game deleted", "game_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *GamesHandler) handleScorecard(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadGame(w, r)
	if !ok {
		return
	}

	spec := snap.Scenario.ScorecardSpec()
	if r.URL.Query().Get("format") == "json" {
		spec = scenario.ScorecardSpec{RenderType: scenario.RenderJSON}
	}
	card, err := scorecard.Project(scorecard.View{
		Scenario: snap.Scenario,
		Entities: snap.Entities,
		Turn:     snap.Turn,
	}, spec)
	if err != nil {
		h.logger.Warn("Failed to project scorecard", "game_id", snap.ID.String(), "error", err)
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, card)
}

func (h *GamesHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "Run queue is not configured")
		return
	}
	snap, ok := h.loadGame(w, r)
	if !ok {
		return
	}
	if snap.Ended {
		writeError(w, h.logger, http.StatusConflict, "Game has ended: "+snap.EndReason)
		return
	}

	body := RunGameRequest{Turns: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
	}

	req := &queue.RunRequest{GameID: snap.ID, Turns: body.Turns}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.runs.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue run", "game_id", snap.ID.String(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue run")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, AcceptedResponse{
		RequestID: req.RequestID,
		GameID:    snap.ID,
		Status:    "queued",
	})
}

func (h *GamesHandler) handleMove(w http.ResponseWriter, r *http.Request) {
	if h.moves == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "Move queue is not configured")
		return
	}
	snap, ok := h.loadGame(w, r)
	if !ok {
		return
	}

	var body MoveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	player, found := humanPlayer(snap.Scenario, body.Player)
	if !found {
		writeError(w, h.logger, http.StatusBadRequest, "No human player named "+body.Player)
		return
	}

	req := &chat.MoveRequest{GameID: snap.ID, Player: player, Text: body.Text}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.moves.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue move", "game_id", snap.ID.String(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue move")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, AcceptedResponse{GameID: snap.ID, Status: "queued"})
}

func (h *GamesHandler) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if h.moves == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "Move queue is not configured")
		return
	}
	id, ok := h.gameID(w, r)
	if !ok {
		return
	}
	player := strings.TrimSpace(r.URL.Query().Get("player"))
	if player == "" {
		writeError(w, h.logger, http.StatusBadRequest, "player query parameter is required")
		return
	}

	prompt, err := h.moves.Prompt(r.Context(), id, player)
	if err != nil {
		h.logger.Error("Failed to read prompt", "game_id", id.String(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to read prompt")
		return
	}
	if prompt == "" {
		writeError(w, h.logger, http.StatusNotFound, "No move is pending for "+player)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, PromptResponse{Player: player, Prompt: prompt})
}

func (h *GamesHandler) gameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.logger.Warn("Invalid game ID", "id", r.PathValue("id"), "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid game ID format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *GamesHandler) loadGame(w http.ResponseWriter, r *http.Request) (*state.Snapshot, bool) {
	id, ok := h.gameID(w, r)
	if !ok {
		return nil, false
	}
	snap, err := h.storage.LoadGame(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotCorrupt) {
			writeError(w, h.logger, http.StatusUnprocessableEntity, "Saved game is corrupt")
			return nil, false
		}
		h.logger.Error("Failed to load game", "game_id", id.String(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load game")
		return nil, false
	}
	if snap == nil {
		writeError(w, h.logger, http.StatusNotFound, "Game not found")
		return nil, false
	}
	return snap, true
}

func summarize(snap *state.Snapshot) GameSummary {
	s := GameSummary{
		ID:        snap.ID,
		Turn:      snap.Turn,
		Ended:     snap.Ended,
		EndReason: snap.EndReason,
	}
	if snap.Scenario != nil {
		s.Scenario = snap.Scenario.Name
		s.MaxTurns = snap.Scenario.MaxTurns
	}
	return s
}

// humanPlayer matches name case-insensitively against the scenario's human
// players and returns the declared name.
func humanPlayer(scn *scenario.Scenario, name string) (string, bool) {
	for _, p := range scn.Players {
		if p.Type == scenario.PlayerHuman && strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p.Name, true
		}
	}
	return "", false
}
