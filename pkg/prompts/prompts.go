package prompts

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// BasePlayerSystemPrompt frames every AI player. The scenario description
// and the player's own behavioral prompt are appended.
const BasePlayerSystemPrompt = `You are a participant in a turn-based simulation. Each turn you are shown the current state of the world and asked for your next move.

### Rules for your reply:
- Reply in character, in the first person, as the leadership of the entity you control.
- Describe one concrete move or statement for this turn in at most one paragraph.
- Do not narrate outcomes. An impartial judge decides what your move achieves.
- Do not speak for other participants.`

// NextMovePrompt closes every player prompt.
const NextMovePrompt = "Based on the current situation, what is your next move or statement?"

// ScoringSystemPrompt frames the judge for every scoring request.
const ScoringSystemPrompt = `You are an impartial judge in a turn-based simulation. You read what every participant did this turn and decide, for one participant and one criterion at a time, what the consequence was.

### Rules for your judgment:
- Judge only the participant you are asked about, using the criterion you are given.
- Base your judgment on the actions in the history, the participant's current status and plausibility.
- Record your judgment by calling the record_judgment tool exactly once. Do not reply with prose.`

// NoActionsNote is shown to the judge when nobody moved.
const NoActionsNote = "No participant took any action this turn."

// Label turns an attribute key such as "world_tension" into "World Tension".
// A Caser is stateful, so each call gets its own.
func Label(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Messages returns the prompt as chat messages, omitting an empty system prompt.
func (p Prompt) Messages() []chat.ChatMessage {
	msgs := make([]chat.ChatMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, chat.ChatMessage{Role: chat.ChatRoleSystem, Content: p.System})
	}
	return append(msgs, chat.ChatMessage{Role: chat.ChatRoleUser, Content: p.User})
}

// ScoringPrompt builds the judge's request for one (rule, entity) pair.
// entity is the entity's status at the start of the turn.
func ScoringPrompt(rule scenario.ScoringRule, entityKey string, entity scenario.Entity, transcript []state.Move, turn int) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Turn %d has just been played.\n", turn)

	sb.WriteString("\n--- History of Actions ---\n")
	if len(transcript) == 0 {
		sb.WriteString(NoActionsNote + "\n")
	}
	for _, m := range transcript {
		fmt.Fprintf(&sb, "Turn %d, %s\n", turn, chat.FormatWithSpeaker(m.Text, m.Player))
	}

	fmt.Fprintf(&sb, "\n--- Participant: %s ---\n", entityKey)
	writeAttributes(&sb, entity, "  ", 0)

	schema := rule.Schema()
	fmt.Fprintf(&sb, "\n--- Criterion: %s ---\n%s\n", Label(rule.Name), strings.TrimSpace(rule.Prompt))
	if schema.Description != "" {
		fmt.Fprintf(&sb, "\nAnswer with a single %s: %s", schema.Type, schema.Description)
	} else {
		fmt.Fprintf(&sb, "\nAnswer with a single %s.", schema.Type)
	}

	return Prompt{System: ScoringSystemPrompt, User: sb.String()}
}

// writeAttributes writes "- Label: value" lines in key order. A positive
// limit keeps only the first limit attributes.
func writeAttributes(sb *strings.Builder, e scenario.Entity, indent string, limit int) {
	keys := e.Keys()
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	for _, k := range keys {
		fmt.Fprintf(sb, "%s- %s: %s\n", indent, Label(k), e[k])
	}
}
