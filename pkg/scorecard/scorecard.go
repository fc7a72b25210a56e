// Package scorecard projects world state into a render-ready payload: a
// filled text template or a flat JSON object of entity attributes.
//
// Styling markup in templates (for example "[bold]...[/bold]") is passed
// through untouched; interpreting it is the renderer's job.
package scorecard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// Placeholders understood by text templates, besides {Entity.attribute}.
const (
	RefTurn        = "turn"
	RefTurnDate    = "turn_date"
	ParamsPrefix   = "parameters."
	EntrySeparator = "."
)

var ErrTemplateResolution = errors.New("template resolution failed")

// TemplateResolutionError names a placeholder that could not be resolved.
type TemplateResolutionError struct {
	Ref    string
	Reason string
}

func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("unresolved placeholder {%s}: %s", e.Ref, e.Reason)
}

func (e *TemplateResolutionError) Is(target error) bool {
	return target == ErrTemplateResolution
}

// View is the slice of world state a scorecard reads.
type View struct {
	Scenario *scenario.Scenario
	Entities scenario.Entities
	Turn     int
}

// Entry is one flattened attribute.
type Entry struct {
	Key   string         `json:"key"` // "Entity.attribute"
	Value scenario.Value `json:"value"`
}

// Payload is a projected scorecard. Text is set for text render types;
// Entries and JSON for json.
type Payload struct {
	Type    scenario.RenderType `json:"type"`
	Text    string              `json:"text,omitempty"`
	Entries []Entry             `json:"entries,omitempty"`
	JSON    json.RawMessage     `json:"json,omitempty"`
}

// String returns the payload as something printable.
func (p *Payload) String() string {
	if p.Type == scenario.RenderJSON {
		return string(p.JSON)
	}
	return p.Text
}

// Project renders view according to spec.
func Project(view View, spec scenario.ScorecardSpec) (*Payload, error) {
	switch spec.Type() {
	case scenario.RenderJSON:
		entries := Flatten(view.Entities)
		raw, err := encodeEntries(entries)
		if err != nil {
			return nil, err
		}
		return &Payload{Type: scenario.RenderJSON, Entries: entries, JSON: raw}, nil
	case scenario.RenderText:
		tmpl := spec.Template
		if strings.TrimSpace(tmpl) == "" {
			tmpl = DefaultTemplate(view)
		}
		text, err := Fill(tmpl, view)
		if err != nil {
			return nil, err
		}
		return &Payload{Type: scenario.RenderText, Text: text}, nil
	default:
		return nil, fmt.Errorf("unknown render type %q", spec.RenderType)
	}
}

// Flatten lists every entity attribute ordered by entity then attribute.
func Flatten(es scenario.Entities) []Entry {
	var out []Entry
	for _, key := range es.Keys() {
		e := es[key]
		for _, attr := range e.Keys() {
			out = append(out, Entry{Key: key + EntrySeparator + attr, Value: e[attr]})
		}
	}
	return out
}

// encodeEntries writes a JSON object keeping entry order.
func encodeEntries(entries []Entry) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var placeholder = regexp.MustCompile(`\{([^{}\n]+)\}`)

// Fill substitutes every placeholder in tmpl. The first unresolved one is
// returned as a *TemplateResolutionError.
func Fill(tmpl string, view View) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if firstErr != nil {
			return m
		}
		ref := strings.TrimSpace(m[1 : len(m)-1])
		v, err := resolve(ref, view)
		if err != nil {
			firstErr = err
			return m
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolve(ref string, view View) (string, error) {
	switch ref {
	case RefTurn:
		return strconv.Itoa(view.Turn), nil
	case RefTurnDate:
		if view.Scenario == nil || view.Scenario.StartDate == "" {
			return "", &TemplateResolutionError{Ref: ref, Reason: "scenario has no start date"}
		}
		return view.Scenario.TurnDate(view.Turn), nil
	}

	if key, ok := strings.CutPrefix(ref, ParamsPrefix); ok {
		if view.Scenario == nil {
			return "", &TemplateResolutionError{Ref: ref, Reason: "no scenario"}
		}
		v, ok := view.Scenario.Parameters[key]
		if !ok {
			return "", &TemplateResolutionError{Ref: ref, Reason: "no such parameter"}
		}
		return v.String(), nil
	}

	// attribute names never contain a dot, entity keys might
	i := strings.LastIndex(ref, EntrySeparator)
	if i <= 0 || i == len(ref)-1 {
		return "", &TemplateResolutionError{Ref: ref, Reason: "expected Entity.attribute"}
	}
	entity, attr := ref[:i], ref[i+1:]
	e, ok := view.Entities[entity]
	if !ok {
		return "", &TemplateResolutionError{Ref: ref, Reason: fmt.Sprintf("no entity %q", entity)}
	}
	v, ok := e[attr]
	if !ok {
		return "", &TemplateResolutionError{Ref: ref, Reason: fmt.Sprintf("entity %q has no attribute %q", entity, attr)}
	}
	return v.String(), nil
}

// DefaultTemplate lays out every entity and attribute. It is used when the
// scenario supplies no text template.
func DefaultTemplate(view View) string {
	var sb strings.Builder
	sb.WriteString("[bold]Turn {turn}")
	if view.Scenario != nil && view.Scenario.StartDate != "" {
		sb.WriteString(" ({turn_date})")
	}
	sb.WriteString("[/bold]\n")
	for _, key := range view.Entities.Keys() {
		sb.WriteString("\n" + escape(key) + "\n")
		for _, attr := range view.Entities[key].Keys() {
			fmt.Fprintf(&sb, "  %s: {%s.%s}\n", prompts.Label(attr), key, attr)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// escape keeps literal text from being read as a placeholder.
func escape(s string) string {
	return strings.NewReplacer("{", "(", "}", ")").Replace(s)
}
