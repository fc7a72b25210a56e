package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	ChatRoleUser   = "user"      // Player or judge prompt
	ChatRoleAgent  = "assistant" // Model reply
	ChatRoleSystem = "system"    // Behavioral prompt
)

// MaxMessageLength bounds a submitted human move.
const MaxMessageLength = 4000

// ChatMessage is a single message sent to or received from an LLM.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Tool describes a function the model is asked to call. Parameters is a
// JSON Schema object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatResponse is a provider reply. ToolArguments is set when the model
// called a tool; Message holds any free text.
type ChatResponse struct {
	Message       string          `json:"message,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolArguments json.RawMessage `json:"tool_arguments,omitempty"`
}

// MoveRequest is a human move submitted from outside the engine process.
type MoveRequest struct {
	GameID uuid.UUID `json:"game_id"`
	Player string    `json:"player"`
	Text   string    `json:"text"`
}

func (mr *MoveRequest) Validate() error {
	if mr.GameID == uuid.Nil {
		return fmt.Errorf("game id is required")
	}
	if mr.Player == "" {
		return fmt.Errorf("player is required")
	}
	if strings.TrimSpace(mr.Text) == "" {
		return fmt.Errorf("move cannot be empty")
	}
	if len(mr.Text) > MaxMessageLength {
		return fmt.Errorf("move exceeds maximum length of %d characters", MaxMessageLength)
	}
	return nil
}

// FormatWithSpeaker prefixes message with "speaker: " unless it already
// starts with a short speaker label.
func FormatWithSpeaker(message, speaker string) string {
	if idx := strings.Index(message, ": "); idx > 0 && idx <= 50 {
		label := message[:idx]
		if !strings.ContainsAny(label, ".!?,;") {
			return message
		}
	}
	return speaker + ": " + message
}
