package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which member of the Value sum type is set.
type Kind string

const (
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindBool   Kind = "boolean"
)

// Value is a typed entity attribute or scenario parameter: a number, a
// string or a boolean. The zero Value is "absent".
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

func NewNumber(f float64) Value { return Value{kind: KindNumber, num: f} }
func NewString(s string) Value  { return Value{kind: KindString, str: s} }
func NewBool(b bool) Value      { return Value{kind: KindBool, b: b} }

// Kind returns the value's kind, or "" for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is absent.
func (v Value) IsZero() bool { return v.kind == "" }

// Number returns the numeric payload and whether v is a number.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the string payload and whether v is a string.
func (v Value) Text() (string, bool) {
	return v.str, v.kind == KindString
}

// Bool returns the boolean payload and whether v is a boolean.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String renders the value the way scorecards and prompts display it.
// Numbers drop trailing zeros: 42, 110, 0.5.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts JSON numbers, strings and booleans. Objects, arrays
// and null are rejected so that malformed scenarios fail at load time.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NewString(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = NewBool(b)
		return nil
	case 'n':
		return fmt.Errorf("null is not a valid value")
	case '{', '[':
		return fmt.Errorf("value must be a number, string or boolean, got %s", kindOfJSON(data[0]))
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid number %s: %w", string(data), err)
	}
	*v = NewNumber(f)
	return nil
}

func kindOfJSON(c byte) string {
	if c == '{' {
		return "object"
	}
	return "array"
}

// Entity is a mutable bag of typed attributes.
type Entity map[string]Value

// Clone returns a copy of e.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (e Entity) Keys() []string {
	return sortedKeys(e)
}

// Entities is a named collection of entities, e.g. "countries".
type Entities map[string]Entity

// Clone returns a deep copy of es.
func (es Entities) Clone() Entities {
	if es == nil {
		return nil
	}
	out := make(Entities, len(es))
	for k, e := range es {
		out[k] = e.Clone()
	}
	return out
}

// Keys returns the entity keys in sorted order.
func (es Entities) Keys() []string {
	return sortedKeys(es)
}

// Get returns the named attribute of the named entity.
func (es Entities) Get(entity, attribute string) (Value, bool) {
	e, ok := es[entity]
	if !ok {
		return Value{}, false
	}
	v, ok := e[attribute]
	return v, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
