package fieldschema

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the display/storage type of a field
type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindBoolean  Kind = "boolean"
	KindSelect   Kind = "select"
	KindRelation Kind = "relation"
	KindComputed Kind = "computed"
)

// DateLayout is the canonical wire format for date values
const DateLayout = "2006-01-02"

// Config describes one datum collected or computed at a step.
// Validation bounds apply per kind: Min/Max to numbers, MinLength/MaxLength
// and Pattern to text, Options to selects, RelationTarget to relations.
// Formula and DependsOn are set only for computed fields.
type Config struct {
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Kind           Kind     `json:"kind"`
	Required       bool     `json:"required"`
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	MinLength      *int     `json:"min_length,omitempty"`
	MaxLength      *int     `json:"max_length,omitempty"`
	Pattern        string   `json:"pattern,omitempty"`
	Options        []string `json:"options,omitempty"`
	RelationTarget string   `json:"relation_target,omitempty"`
	Formula        string   `json:"formula,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty"`
}

// ReadOnly reports whether the field is computed rather than collected.
// Computed fields never accept client-supplied values.
func (c Config) ReadOnly() bool {
	return c.Kind == KindComputed
}

// KnownKinds lists every supported field kind
func KnownKinds() []Kind {
	return []Kind{KindText, KindNumber, KindDate, KindBoolean, KindSelect, KindRelation, KindComputed}
}

// IsKnownKind reports whether k is a supported field kind
func IsKnownKind(k Kind) bool {
	for _, known := range KnownKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Value is the tagged-union representation of an accepted field value.
// Exactly one payload slot is meaningful, selected by Kind:
// Text for text/date/select/relation, Number for number/computed,
// Bool for boolean.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Bool   bool
}

// TextValue builds a text-carrying Value of the given kind
func TextValue(kind Kind, text string) Value {
	return Value{Kind: kind, Text: text}
}

// NumberValue builds a numeric Value of the given kind
func NumberValue(kind Kind, number float64) Value {
	return Value{Kind: kind, Number: number}
}

// BoolValue builds a boolean Value
func BoolValue(b bool) Value {
	return Value{Kind: KindBoolean, Bool: b}
}

// Raw returns the untagged payload for JSON responses
func (v Value) Raw() interface{} {
	switch v.Kind {
	case KindNumber, KindComputed:
		return v.Number
	case KindBoolean:
		return v.Bool
	default:
		return v.Text
	}
}

type valueJSON struct {
	Kind  Kind        `json:"kind"`
	Value interface{} `json:"value"`
}

// MarshalJSON encodes the value with its kind tag so accumulated values
// survive a store round trip without type loss
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Kind: v.Kind, Value: v.Raw()})
}

// UnmarshalJSON decodes a kind-tagged value
func (v *Value) UnmarshalJSON(data []byte) error {
	var wire valueJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if !IsKnownKind(wire.Kind) {
		return fmt.Errorf("unknown field kind '%s'", wire.Kind)
	}
	v.Kind = wire.Kind
	switch wire.Kind {
	case KindNumber, KindComputed:
		num, ok := wire.Value.(float64)
		if !ok {
			return fmt.Errorf("field kind '%s' requires a numeric value, got %T", wire.Kind, wire.Value)
		}
		v.Number = num
	case KindBoolean:
		b, ok := wire.Value.(bool)
		if !ok {
			return fmt.Errorf("field kind 'boolean' requires a boolean value, got %T", wire.Value)
		}
		v.Bool = b
	default:
		s, ok := wire.Value.(string)
		if !ok {
			return fmt.Errorf("field kind '%s' requires a string value, got %T", wire.Kind, wire.Value)
		}
		v.Text = s
	}
	return nil
}
