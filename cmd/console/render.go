package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/textfilter"
)

var markupColors = map[string]lipgloss.Color{
	"red":     lipgloss.Color("196"),
	"green":   lipgloss.Color("86"),
	"yellow":  lipgloss.Color("214"),
	"blue":    lipgloss.Color("39"),
	"magenta": lipgloss.Color("205"),
	"cyan":    lipgloss.Color("51"),
	"white":   lipgloss.Color("255"),
	"gray":    lipgloss.Color("240"),
}

// renderMarkup turns scorecard markup into terminal styles.
func renderMarkup(text string) string {
	return textfilter.Render(text, func(seg textfilter.Segment) string {
		st := lipgloss.NewStyle()
		for _, tag := range seg.Tags {
			switch tag {
			case "bold":
				st = st.Bold(true)
			case "italic":
				st = st.Italic(true)
			case "underline":
				st = st.Underline(true)
			case "strike":
				st = st.Strikethrough(true)
			case "dim":
				st = st.Faint(true)
			default:
				if c, ok := markupColors[tag]; ok {
					st = st.Foreground(c)
				}
			}
		}
		return st.Render(seg.Text)
	})
}

// formatSpeech wraps a player's move and styles its speaker label.
func formatSpeech(speaker, text string, width int, style lipgloss.Style) string {
	if width < 10 {
		width = 10
	}
	msg := chat.FormatWithSpeaker(strings.TrimSpace(text), speaker)
	wrapped := wordwrap.String(msg, width)

	idx := strings.Index(wrapped, ": ")
	if idx <= 0 {
		return wrapped
	}
	return style.Render(wrapped[:idx+1]) + wrapped[idx+1:]
}

// formatTurn renders one committed turn for the transcript.
func formatTurn(rec state.TurnRecord, width int) string {
	var sb strings.Builder
	header := fmt.Sprintf("Turn %d", rec.Turn)
	if rec.Date != "" {
		header += "  " + rec.Date
	}
	sb.WriteString(titleStyle.Render(header) + "\n\n")

	for _, m := range rec.Moves {
		if m.Failed {
			sb.WriteString(formatSpeech(m.Player, m.Text, width, speakerStyle) + "\n")
			sb.WriteString(errorStyle.Render(wordwrap.String("  move failed: "+m.Error, width)) + "\n\n")
			continue
		}
		sb.WriteString(formatSpeech(m.Player, m.Text, width, speakerStyle) + "\n\n")
	}

	var failed []string
	for _, s := range rec.Scores {
		if s.Failed {
			failed = append(failed, fmt.Sprintf("%s.%s", s.Entity, s.Rule))
		}
	}
	if len(failed) > 0 {
		sb.WriteString(errorStyle.Render(wordwrap.String("Not scored: "+strings.Join(failed, ", "), width)) + "\n\n")
	}
	return sb.String()
}

// writeMetadata renders the side panel.
func writeMetadata(eng *engine.Engine, scorecard string) string {
	var content strings.Builder
	scn := eng.Scenario()
	content.WriteString(titleStyle.Render("GAME") + "\n\n")

	content.WriteString("Scenario:\n")
	content.WriteString(scn.Name + "\n\n")

	content.WriteString("Game ID:\n")
	content.WriteString(eng.ID().String()[:8] + "...\n\n")

	turn := eng.Turn()
	content.WriteString(fmt.Sprintf("Turn: %d of %d\n", turn, eng.MaxTurns()))
	if date := scn.TurnDate(turn); date != "" {
		content.WriteString(fmt.Sprintf("Date: %s\n", date))
	}
	content.WriteString(fmt.Sprintf("Phase: %s\n\n", eng.Phase()))

	content.WriteString("Players:\n")
	for _, p := range scn.Players {
		content.WriteString(fmt.Sprintf("• %s (%s, %s)\n", p.Name, p.Controls, p.Type))
	}
	if len(scn.Players) == 0 {
		content.WriteString("None\n")
	}

	content.WriteString("\n" + titleStyle.Render("SCORECARD") + "\n\n")
	content.WriteString(scorecard + "\n\n")

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Next turn / send move\n")
	content.WriteString("• c: Copy scorecard\n")
	content.WriteString("• /stop: End game\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}
