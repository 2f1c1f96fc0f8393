package fieldschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestValidate_Required(t *testing.T) {
	cfg := Config{Name: "beneficiary", Kind: KindText, Required: true}

	_, failure := Validate(cfg, nil)
	require.NotNil(t, failure)
	assert.Equal(t, "required", failure.Constraint)
	assert.Equal(t, "beneficiary", failure.Field)

	_, failure = Validate(cfg, "")
	require.NotNil(t, failure)
	assert.Equal(t, "required", failure.Constraint)
}

func TestValidate_OptionalMissing(t *testing.T) {
	cfg := Config{Name: "remarks", Kind: KindText}
	value, failure := Validate(cfg, nil)
	assert.Nil(t, failure)
	assert.Equal(t, Value{}, value)
}

func TestValidate_Number(t *testing.T) {
	cfg := Config{Name: "amount", Kind: KindNumber, Required: true, Min: floatPtr(0), Max: floatPtr(1000000)}

	value, failure := Validate(cfg, 250000.0)
	require.Nil(t, failure)
	assert.Equal(t, 250000.0, value.Number)

	// JSON payloads may carry numbers as strings
	value, failure = Validate(cfg, "1234.5")
	require.Nil(t, failure)
	assert.Equal(t, 1234.5, value.Number)

	_, failure = Validate(cfg, -1.0)
	require.NotNil(t, failure)
	assert.Equal(t, "min", failure.Constraint)

	_, failure = Validate(cfg, 2000000.0)
	require.NotNil(t, failure)
	assert.Equal(t, "max", failure.Constraint)

	_, failure = Validate(cfg, "not-a-number")
	require.NotNil(t, failure)
	assert.Equal(t, "type", failure.Constraint)
}

func TestValidate_TextBoundsAndPattern(t *testing.T) {
	cfg := Config{Name: "swift_bic", Kind: KindText, MinLength: intPtr(8), MaxLength: intPtr(11), Pattern: `^[A-Z0-9]+$`}

	value, failure := Validate(cfg, "BNPAFRPP")
	require.Nil(t, failure)
	assert.Equal(t, "BNPAFRPP", value.Text)

	_, failure = Validate(cfg, "AB")
	require.NotNil(t, failure)
	assert.Equal(t, "min_length", failure.Constraint)

	_, failure = Validate(cfg, "bnpafrpp")
	require.NotNil(t, failure)
	assert.Equal(t, "pattern", failure.Constraint)
}

func TestValidate_Date(t *testing.T) {
	cfg := Config{Name: "expiry_date", Kind: KindDate}

	value, failure := Validate(cfg, "2026-12-31")
	require.Nil(t, failure)
	assert.Equal(t, "2026-12-31", value.Text)

	_, failure = Validate(cfg, "31/12/2026")
	require.NotNil(t, failure)
	assert.Equal(t, "type", failure.Constraint)
}

func TestValidate_Boolean(t *testing.T) {
	cfg := Config{Name: "confirmed", Kind: KindBoolean}

	value, failure := Validate(cfg, true)
	require.Nil(t, failure)
	assert.True(t, value.Bool)

	value, failure = Validate(cfg, "false")
	require.Nil(t, failure)
	assert.False(t, value.Bool)

	_, failure = Validate(cfg, 3.0)
	require.NotNil(t, failure)
	assert.Equal(t, "type", failure.Constraint)
}

func TestValidate_Select(t *testing.T) {
	cfg := Config{Name: "currency", Kind: KindSelect, Options: []string{"EUR", "USD", "GBP"}}

	value, failure := Validate(cfg, "EUR")
	require.Nil(t, failure)
	assert.Equal(t, "EUR", value.Text)

	_, failure = Validate(cfg, "JPY")
	require.NotNil(t, failure)
	assert.Equal(t, "option", failure.Constraint)
}

func TestValidate_Relation(t *testing.T) {
	cfg := Config{Name: "customer_id", Kind: KindRelation, RelationTarget: "customer"}

	value, failure := Validate(cfg, "c-123")
	require.Nil(t, failure)
	assert.Equal(t, "c-123", value.Text)

	_, failure = Validate(cfg, "   ")
	require.NotNil(t, failure)
	assert.Equal(t, "relation", failure.Constraint)
}

func TestValidate_ComputedRejected(t *testing.T) {
	cfg := Config{Name: "total", Kind: KindComputed, Formula: "a + b", DependsOn: []string{"a", "b"}}
	_, failure := Validate(cfg, 12.0)
	require.NotNil(t, failure)
	assert.Equal(t, "read_only", failure.Constraint)
}

func TestValue_JSONRoundTrip(t *testing.T) {
	values := map[string]Value{
		"amount":    NumberValue(KindNumber, 5000),
		"total":     NumberValue(KindComputed, 5250.5),
		"confirmed": BoolValue(true),
		"currency":  TextValue(KindSelect, "EUR"),
		"expiry":    TextValue(KindDate, "2026-12-31"),
	}

	data, err := json.Marshal(values)
	require.NoError(t, err)

	var decoded map[string]Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, values, decoded)
}

func TestComputedOrder(t *testing.T) {
	fields := []Config{
		{Name: "grand_total", Kind: KindComputed, Formula: "subtotal + fees", DependsOn: []string{"subtotal", "fees"}},
		{Name: "subtotal", Kind: KindComputed, Formula: "principal * rate", DependsOn: []string{"principal", "rate"}},
		{Name: "principal", Kind: KindNumber},
	}
	available := func(name string) bool {
		return name == "principal" || name == "rate" || name == "fees"
	}

	ordered, err := ComputedOrder(fields, available)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "subtotal", ordered[0].Name)
	assert.Equal(t, "grand_total", ordered[1].Name)
}

func TestComputedOrder_Cycle(t *testing.T) {
	fields := []Config{
		{Name: "a", Kind: KindComputed, Formula: "b + 1", DependsOn: []string{"b"}},
		{Name: "b", Kind: KindComputed, Formula: "a + 1", DependsOn: []string{"a"}},
	}
	_, err := ComputedOrder(fields, func(string) bool { return false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestComputedOrder_UnknownDependency(t *testing.T) {
	fields := []Config{
		{Name: "total", Kind: KindComputed, Formula: "ghost * 2", DependsOn: []string{"ghost"}},
	}
	_, err := ComputedOrder(fields, func(string) bool { return false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
