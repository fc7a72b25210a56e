package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// Snapshot is the persisted form of a WorldState, scenario included.
type Snapshot struct {
	ID        uuid.UUID          `json:"id"`
	Scenario  *scenario.Scenario `json:"scenario"`
	Turn      int                `json:"turn"`
	Entities  scenario.Entities  `json:"entities"`
	History   []TurnRecord       `json:"history"`
	Ended     bool               `json:"ended,omitempty"`
	EndReason string             `json:"end_reason,omitempty"`
	SavedAt   time.Time          `json:"saved_at"`
}

// ErrInvalidSnapshot is returned by Validate for structurally broken snapshots.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Validate checks that a decoded snapshot can be restored.
func (s *Snapshot) Validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	if s.Scenario == nil {
		return fmt.Errorf("%w: missing scenario", ErrInvalidSnapshot)
	}
	if s.Entities == nil {
		return fmt.Errorf("%w: missing entities", ErrInvalidSnapshot)
	}
	if s.Turn < 0 {
		return fmt.Errorf("%w: negative turn %d", ErrInvalidSnapshot, s.Turn)
	}
	if len(s.History) != s.Turn {
		return fmt.Errorf("%w: %d turn records for turn %d", ErrInvalidSnapshot, len(s.History), s.Turn)
	}
	for i, r := range s.History {
		if r.Turn != i+1 {
			return fmt.Errorf("%w: history entry %d is turn %d", ErrInvalidSnapshot, i, r.Turn)
		}
	}
	return nil
}

// WorldState rebuilds a world from the snapshot. The snapshot is copied.
func (s *Snapshot) WorldState() (*WorldState, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	hist := make([]TurnRecord, len(s.History))
	for i, r := range s.History {
		hist[i] = r.Clone()
	}
	return &WorldState{
		ID:        s.ID,
		Scenario:  s.Scenario.Clone(),
		Entities:  s.Entities.Clone(),
		Turn:      s.Turn,
		History:   hist,
		Ended:     s.Ended,
		EndReason: s.EndReason,
	}, nil
}
