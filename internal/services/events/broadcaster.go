package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeGameStarted   EventType = "game.started"
	EventTypeTurnCommitted EventType = "turn.committed"
	EventTypeGameEnded     EventType = "game.ended"
)

// Event represents a generic event structure
type Event struct {
	Type   EventType      `json:"type"`
	GameID string         `json:"game_id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a game's events.
func Channel(gameID uuid.UUID) string {
	return fmt.Sprintf("game-events:%s", gameID.String())
}

// Broadcaster publishes game events to Redis Pub/Sub. It is an
// engine.Observer.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishGameStarted publishes a game.started event
func (b *Broadcaster) PublishGameStarted(ctx context.Context, gameID uuid.UUID, scenarioName string, maxTurns int) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeGameStarted,
		GameID: gameID.String(),
		Data: map[string]any{
			"scenario":  scenarioName,
			"max_turns": maxTurns,
		},
	})
}

// TurnCommitted publishes turn.committed, then game.ended when the commit
// finished the game.
func (b *Broadcaster) TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
	failed := 0
	for _, s := range rec.Scores {
		if s.Failed {
			failed++
		}
	}
	err := b.publishToGame(ctx, snap.ID, Event{
		Type:   EventTypeTurnCommitted,
		GameID: snap.ID.String(),
		Data: map[string]any{
			"turn":          rec.Turn,
			"date":          rec.Date,
			"moves":         rec.Moves,
			"failed_scores": failed,
			"entities":      snap.Entities,
		},
	})
	if err != nil {
		return err
	}
	if snap.Ended {
		return b.PublishGameEnded(ctx, snap.ID, snap.Turn, snap.EndReason)
	}
	return nil
}

// PublishGameEnded publishes a game.ended event
func (b *Broadcaster) PublishGameEnded(ctx context.Context, gameID uuid.UUID, turn int, reason string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeGameEnded,
		GameID: gameID.String(),
		Data: map[string]any{
			"turn":   turn,
			"reason": reason,
		},
	})
}

// publishToGame publishes an event to the game-specific channel
func (b *Broadcaster) publishToGame(ctx context.Context, gameID uuid.UUID, event Event) error {
	channel := Channel(gameID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
