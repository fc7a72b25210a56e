package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// PollInterval is how often to check the saved game for progress
const PollInterval = 500 * time.Millisecond

func (r *Runner) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s returned %d (expected %d): %s", method, path, resp.StatusCode, want, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateGame starts a game and returns its id.
func (r *Runner) CreateGame(ctx context.Context, scenario string, maxTurns int) (uuid.UUID, error) {
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	body := map[string]any{"scenario": scenario, "max_turns": maxTurns}
	if err := r.do(ctx, http.MethodPost, "/v1/games", body, http.StatusCreated, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// QueueRun asks the workers to play turns.
func (r *Runner) QueueRun(ctx context.Context, id uuid.UUID, turns int) error {
	return r.do(ctx, http.MethodPost, fmt.Sprintf("/v1/games/%s/run", id), map[string]int{"turns": turns}, http.StatusAccepted, nil)
}

// PostMove queues a human player's move.
func (r *Runner) PostMove(ctx context.Context, id uuid.UUID, m MoveStep) error {
	return r.do(ctx, http.MethodPost, fmt.Sprintf("/v1/games/%s/moves", id), map[string]string{"player": m.Player, "text": m.Text}, http.StatusAccepted, nil)
}

// GetGame retrieves the saved game
func (r *Runner) GetGame(ctx context.Context, id uuid.UUID) (*state.Snapshot, error) {
	var snap state.Snapshot
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/games/%s", id), nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetScorecard returns the rendered scorecard text.
func (r *Runner) GetScorecard(ctx context.Context, id uuid.UUID) (string, error) {
	var card struct {
		Text string          `json:"text"`
		JSON json.RawMessage `json:"json"`
	}
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/games/%s/scorecard", id), nil, http.StatusOK, &card); err != nil {
		return "", err
	}
	if card.Text != "" {
		return card.Text, nil
	}
	return string(card.JSON), nil
}

// DeleteGame removes the saved game.
func (r *Runner) DeleteGame(ctx context.Context, id uuid.UUID) error {
	return r.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/games/%s", id), nil, http.StatusNoContent, nil)
}

// PollForTurn polls the saved game until it reaches turn or ends.
func (r *Runner) PollForTurn(ctx context.Context, id uuid.UUID, turn int) (*state.Snapshot, error) {
	timeout := time.After(r.Timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		snap, err := r.GetGame(ctx, id)
		if err == nil && (snap.Turn >= turn || snap.Ended) {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for turn %d (waited %v)", turn, r.Timeout)
		case <-ticker.C:
		}
	}
}
