package judgment

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// ToolName is the function every structured judgment is recorded through.
const ToolName = "record_judgment"

// toolParameters builds the JSON Schema for the record_judgment tool.
func toolParameters(schema scenario.ToolSchema) json.RawMessage {
	value := map[string]any{"type": string(schema.Type)}
	if schema.Description != "" {
		value["description"] = schema.Description
	}
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": value},
		"required":   []string{"value"},
	}
	data, _ := json.Marshal(params)
	return data
}

// decodeArguments extracts "value" from tool-call arguments.
func decodeArguments(args json.RawMessage, prim scenario.Primitive) (scenario.Value, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return scenario.Value{}, invalidf("tool arguments are not a JSON object: %v", err)
	}
	raw, ok := obj["value"]
	if !ok {
		return scenario.Value{}, invalidf("tool arguments have no \"value\"")
	}
	return coerceJSON(raw, prim)
}

// decodeText accepts a free-text reply as either {"value": ...} or a bare
// scalar. Markdown code fences are stripped first.
func decodeText(text string, prim scenario.Primitive) (scenario.Value, error) {
	text = stripFences(text)
	if text == "" {
		return scenario.Value{}, invalidf("empty reply")
	}
	if strings.HasPrefix(text, "{") {
		return decodeArguments(json.RawMessage(text), prim)
	}
	if json.Valid([]byte(text)) {
		return coerceJSON(json.RawMessage(text), prim)
	}
	return coerceString(text, prim)
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// coerceJSON converts a JSON scalar to the declared primitive.
func coerceJSON(raw json.RawMessage, prim scenario.Primitive) (scenario.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return scenario.Value{}, invalidf("value is not valid JSON: %v", err)
	}

	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return scenario.Value{}, invalidf("value %s is not a number", x)
		}
		return coerceNumber(f, prim)
	case string:
		return coerceString(x, prim)
	case bool:
		switch prim {
		case scenario.PrimitiveBoolean:
			return scenario.NewBool(x), nil
		case scenario.PrimitiveString:
			return scenario.NewString(strconv.FormatBool(x)), nil
		}
		return scenario.Value{}, invalidf("expected %s, got boolean", prim)
	case nil:
		return scenario.Value{}, invalidf("value is null")
	}
	return scenario.Value{}, invalidf("expected %s, got %T", prim, v)
}

func coerceNumber(f float64, prim scenario.Primitive) (scenario.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return scenario.Value{}, invalidf("value is not finite")
	}
	switch prim {
	case scenario.PrimitiveInteger:
		if f != math.Trunc(f) {
			return scenario.Value{}, invalidf("expected integer, got %s", strconv.FormatFloat(f, 'f', -1, 64))
		}
		return scenario.NewNumber(f), nil
	case scenario.PrimitiveNumber:
		return scenario.NewNumber(f), nil
	case scenario.PrimitiveString:
		return scenario.NewString(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return scenario.Value{}, invalidf("expected %s, got number", prim)
}

func coerceString(s string, prim scenario.Primitive) (scenario.Value, error) {
	trimmed := strings.TrimSpace(s)
	switch prim {
	case scenario.PrimitiveString:
		if trimmed == "" {
			return scenario.Value{}, invalidf("empty string")
		}
		return scenario.NewString(s), nil
	case scenario.PrimitiveInteger, scenario.PrimitiveNumber:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return scenario.Value{}, invalidf("expected %s, got %q", prim, s)
		}
		return coerceNumber(f, prim)
	case scenario.PrimitiveBoolean:
		switch strings.ToLower(trimmed) {
		case "true":
			return scenario.NewBool(true), nil
		case "false":
			return scenario.NewBool(false), nil
		}
		return scenario.Value{}, invalidf("expected boolean, got %q", s)
	}
	return scenario.Value{}, invalidf("unsupported type %q", prim)
}
