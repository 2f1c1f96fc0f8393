package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

// Executor interface for db/tx flexibility
type Executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// marshalJSONColumn serializes a value for a JSON column. Nil slices and
// empty maps become SQL NULL rather than "null" text.
func marshalJSONColumn(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case []fieldschema.Config:
		if len(val) == 0 {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]fieldschema.Value:
		if len(val) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return data, nil
}

func unmarshalFieldConfigs(raw []byte) ([]fieldschema.Config, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var configs []fieldschema.Config
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field configs: %w", err)
	}
	return configs, nil
}

func unmarshalStringList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return list, nil
}

func unmarshalValues(raw []byte) (map[string]fieldschema.Value, error) {
	if len(raw) == 0 {
		return map[string]fieldschema.Value{}, nil
	}
	values := make(map[string]fieldschema.Value)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field values: %w", err)
	}
	return values, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
