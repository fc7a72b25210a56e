package chat

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFormatWithSpeaker(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		speaker  string
		expected string
	}{
		{
			name:     "adds speaker prefix to plain message",
			message:  "We announce the Marshall Plan.",
			speaker:  "Washington",
			expected: "Washington: We announce the Marshall Plan.",
		},
		{
			name:     "preserves existing speaker prefix",
			message:  "Moscow: We blockade Berlin.",
			speaker:  "Washington",
			expected: "Moscow: We blockade Berlin.",
		},
		{
			name:     "preserves speaker name with spaces",
			message:  "Prime Minister: We stay neutral.",
			speaker:  "Delhi",
			expected: "Prime Minister: We stay neutral.",
		},
		{
			name:     "sentence with colon gets prefix",
			message:  "We did two things. First: an airlift.",
			speaker:  "Washington",
			expected: "Washington: We did two things. First: an airlift.",
		},
		{
			name:     "handles empty message",
			message:  "",
			speaker:  "Moscow",
			expected: "Moscow: ",
		},
		{
			name:     "very long potential speaker label",
			message:  "This is a really really really really really long label: message",
			speaker:  "Delhi",
			expected: "Delhi: This is a really really really really really long label: message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatWithSpeaker(tt.message, tt.speaker)
			if result != tt.expected {
				t.Errorf("FormatWithSpeaker(%q, %q) = %q; want %q",
					tt.message, tt.speaker, result, tt.expected)
			}
		})
	}
}

func TestMoveRequest_Validate(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	tests := []struct {
		name    string
		req     MoveRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid move",
			req:  MoveRequest{GameID: id, Player: "Washington", Text: "We form NATO."},
		},
		{
			name: "move at max length",
			req:  MoveRequest{GameID: id, Player: "Washington", Text: strings.Repeat("a", MaxMessageLength)},
		},
		{
			name:    "move too long",
			req:     MoveRequest{GameID: id, Player: "Washington", Text: strings.Repeat("a", MaxMessageLength+1)},
			wantErr: true,
			errMsg:  "exceeds maximum length",
		},
		{
			name:    "blank move",
			req:     MoveRequest{GameID: id, Player: "Washington", Text: "   "},
			wantErr: true,
			errMsg:  "cannot be empty",
		},
		{
			name:    "missing player",
			req:     MoveRequest{GameID: id, Text: "hello"},
			wantErr: true,
			errMsg:  "player is required",
		},
		{
			name:    "missing game",
			req:     MoveRequest{Player: "Washington", Text: "hello"},
			wantErr: true,
			errMsg:  "game id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}
