package repo

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veldtdb/veldt/pkg/graph"
)

// Payloads (free-form data, embeddings, index config) are stored as JSON
// text columns; timestamps as unix nanoseconds.

func marshalData(data map[string]any) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: data payload: %v", graph.ErrValidation, err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalData(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw.String), &data); err != nil {
		return nil, fmt.Errorf("%w: data payload: %v", graph.ErrStorage, err)
	}
	return data, nil
}

func marshalEmbedding(embedding []float32) (string, error) {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return "", fmt.Errorf("%w: embedding: %v", graph.ErrValidation, err)
	}
	return string(raw), nil
}

func unmarshalEmbedding(raw string) ([]float32, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", graph.ErrStorage, err)
	}
	return embedding, nil
}

func marshalIndexConfig(cfg *graph.VectorIndexConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: vector index config: %v", graph.ErrValidation, err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalIndexConfig(raw sql.NullString) (*graph.VectorIndexConfig, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var cfg graph.VectorIndexConfig
	if err := json.Unmarshal([]byte(raw.String), &cfg); err != nil {
		return nil, fmt.Errorf("%w: vector index config: %v", graph.ErrStorage, err)
	}
	return &cfg, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullable(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
