package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxRunTurns caps how many turns a single run request may ask for.
const MaxRunTurns = 100

// RunRequest asks a worker to advance a saved game by up to Turns turns.
type RunRequest struct {
	RequestID string    `json:"request_id"`
	GameID    uuid.UUID `json:"game_id"`
	Turns     int       `json:"turns"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate checks the request before it is queued.
func (r *RunRequest) Validate() error {
	if r.GameID == uuid.Nil {
		return errors.New("game_id is required")
	}
	if r.Turns < 1 {
		return errors.New("turns must be at least 1")
	}
	if r.Turns > MaxRunTurns {
		return errors.New("turns exceeds the per-request limit")
	}
	return nil
}

// MarshalJSON serializes the request to JSON for Redis storage
func (r *RunRequest) MarshalJSON() ([]byte, error) {
	type Alias RunRequest
	return json.Marshal(&struct {
		GameID string `json:"game_id"`
		*Alias
	}{
		GameID: r.GameID.String(),
		Alias:  (*Alias)(r),
	})
}

// UnmarshalJSON deserializes the request from JSON in Redis
func (r *RunRequest) UnmarshalJSON(data []byte) error {
	type Alias RunRequest
	aux := &struct {
		GameID string `json:"game_id"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	gameID, err := uuid.Parse(aux.GameID)
	if err != nil {
		return err
	}

	r.GameID = gameID
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *RunRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*RunRequest, error) {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
