package fieldschema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Failure names the field and the violated constraint for one rejected value
type Failure struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

func fail(field, constraint, message string) *Failure {
	return &Failure{Field: field, Constraint: constraint, Message: message}
}

// Validate checks a candidate value against a field config and returns the
// accepted, possibly type-coerced Value or a single Failure. The check order
// is fixed: required first, then type coercion, then bounds/pattern.
// Computed fields are rejected outright since they are never client-supplied.
func Validate(cfg Config, raw interface{}) (Value, *Failure) {
	if cfg.Kind == KindComputed {
		return Value{}, fail(cfg.Name, "read_only", "field is computed and cannot be supplied")
	}

	if raw == nil || raw == "" {
		if cfg.Required {
			return Value{}, fail(cfg.Name, "required", "value is required")
		}
		return Value{}, nil
	}

	switch cfg.Kind {
	case KindText:
		return validateText(cfg, raw)
	case KindNumber:
		return validateNumber(cfg, raw)
	case KindDate:
		return validateDate(cfg, raw)
	case KindBoolean:
		return validateBoolean(cfg, raw)
	case KindSelect:
		return validateSelect(cfg, raw)
	case KindRelation:
		return validateRelation(cfg, raw)
	default:
		return Value{}, fail(cfg.Name, "type", fmt.Sprintf("unknown field kind '%s'", cfg.Kind))
	}
}

func validateText(cfg Config, raw interface{}) (Value, *Failure) {
	s, ok := raw.(string)
	if !ok {
		return Value{}, fail(cfg.Name, "type", fmt.Sprintf("expected text, got %T", raw))
	}
	if cfg.MinLength != nil && len(s) < *cfg.MinLength {
		return Value{}, fail(cfg.Name, "min_length", fmt.Sprintf("must be at least %d characters", *cfg.MinLength))
	}
	if cfg.MaxLength != nil && len(s) > *cfg.MaxLength {
		return Value{}, fail(cfg.Name, "max_length", fmt.Sprintf("must be at most %d characters", *cfg.MaxLength))
	}
	if cfg.Pattern != "" {
		matched, err := regexp.MatchString(cfg.Pattern, s)
		if err != nil || !matched {
			return Value{}, fail(cfg.Name, "pattern", "does not match the required format")
		}
	}
	return TextValue(KindText, s), nil
}

func validateNumber(cfg Config, raw interface{}) (Value, *Failure) {
	num, err := coerceFloat(raw)
	if err != nil {
		return Value{}, fail(cfg.Name, "type", "expected a numeric value")
	}
	if cfg.Min != nil && num < *cfg.Min {
		return Value{}, fail(cfg.Name, "min", fmt.Sprintf("must be at least %v", *cfg.Min))
	}
	if cfg.Max != nil && num > *cfg.Max {
		return Value{}, fail(cfg.Name, "max", fmt.Sprintf("must be at most %v", *cfg.Max))
	}
	return NumberValue(KindNumber, num), nil
}

func validateDate(cfg Config, raw interface{}) (Value, *Failure) {
	s, ok := raw.(string)
	if !ok {
		return Value{}, fail(cfg.Name, "type", fmt.Sprintf("expected a date string, got %T", raw))
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Value{}, fail(cfg.Name, "type", "expected date in YYYY-MM-DD format")
	}
	return TextValue(KindDate, t.Format(DateLayout)), nil
}

func validateBoolean(cfg Config, raw interface{}) (Value, *Failure) {
	switch b := raw.(type) {
	case bool:
		return BoolValue(b), nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return Value{}, fail(cfg.Name, "type", "expected a boolean")
		}
		return BoolValue(parsed), nil
	default:
		return Value{}, fail(cfg.Name, "type", "expected a boolean")
	}
}

func validateSelect(cfg Config, raw interface{}) (Value, *Failure) {
	s, ok := raw.(string)
	if !ok {
		return Value{}, fail(cfg.Name, "type", fmt.Sprintf("expected a select option, got %T", raw))
	}
	for _, opt := range cfg.Options {
		if opt == s {
			return TextValue(KindSelect, s), nil
		}
	}
	return Value{}, fail(cfg.Name, "option", fmt.Sprintf("'%s' is not one of: %s", s, strings.Join(cfg.Options, ", ")))
}

// validateRelation checks presence and shape only. Resolving the id to a
// display label is the relation resolver's concern and never gates a
// transition.
func validateRelation(cfg Config, raw interface{}) (Value, *Failure) {
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return Value{}, fail(cfg.Name, "relation", "expected a non-empty relation id")
	}
	return TextValue(KindRelation, s), nil
}

func coerceFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}
