// Package textfilter handles the bracket markup scenario authors use in
// scorecard templates, e.g. "[bold]1947-03-12[/bold]" or "[red]...[/]".
// Unknown bracketed words are left as literal text.
package textfilter

import (
	"regexp"
	"strings"
)

// Styles recognized as markup tags.
var knownTags = map[string]bool{
	"bold": true, "b": true,
	"italic": true, "i": true,
	"underline": true, "u": true,
	"dim": true, "strike": true,
	"red": true, "green": true, "yellow": true, "blue": true,
	"magenta": true, "cyan": true, "white": true, "gray": true,
}

var tagPattern = regexp.MustCompile(`\[(/?)([a-zA-Z]*)\]`)

// Segment is a run of text with the tags open over it, outermost first.
type Segment struct {
	Text string
	Tags []string
}

// Has reports whether tag is open over the segment.
func (s Segment) Has(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Canonical returns the long name for a tag alias.
func Canonical(tag string) string {
	switch tag {
	case "b":
		return "bold"
	case "i":
		return "italic"
	case "u":
		return "underline"
	}
	return tag
}

// Parse splits text into styled segments. "[/]" closes the innermost tag;
// "[/name]" closes the nearest open name. Unclosed tags run to the end.
func Parse(text string) []Segment {
	var (
		out   []Segment
		stack []string
		last  int
	)
	emit := func(s string) {
		if s == "" {
			return
		}
		out = append(out, Segment{Text: s, Tags: append([]string(nil), stack...)})
	}

	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		closing := m[3] > m[2]
		name := Canonical(strings.ToLower(text[m[4]:m[5]]))

		switch {
		case closing && name == "":
			if len(stack) == 0 {
				continue
			}
			emit(text[last:m[0]])
			stack = stack[:len(stack)-1]
		case closing:
			i := lastIndex(stack, name)
			if i < 0 {
				continue
			}
			emit(text[last:m[0]])
			stack = append(stack[:i], stack[i+1:]...)
		case knownTags[name]:
			emit(text[last:m[0]])
			stack = append(stack, name)
		default:
			continue
		}
		last = m[1]
	}
	emit(text[last:])
	return out
}

func lastIndex(stack []string, name string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == name {
			return i
		}
	}
	return -1
}

// Strip removes markup and returns the plain text.
func Strip(text string) string {
	var sb strings.Builder
	for _, seg := range Parse(text) {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Render rebuilds text with each segment passed through style.
func Render(text string, style func(Segment) string) string {
	var sb strings.Builder
	for _, seg := range Parse(text) {
		if len(seg.Tags) == 0 {
			sb.WriteString(seg.Text)
			continue
		}
		sb.WriteString(style(seg))
	}
	return sb.String()
}
