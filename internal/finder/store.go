package finder

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// SQLiteStore persists tool embedding vectors in the cache's SQLite
// database, grounded on the teacher's pkg/storage/embeddings_store.go
// table-creation and pkg/embeddings binary vector encoding.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db, creating the tool_embeddings table if missing.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_embeddings (
			tool_name TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("finder: creating tool_embeddings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert stores or replaces the embedding vector for toolName.
func (s *SQLiteStore) Upsert(ctx context.Context, toolName string, vector []float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_embeddings (tool_name, embedding) VALUES (?, ?)
		ON CONFLICT(tool_name) DO UPDATE SET embedding = excluded.embedding`,
		toolName, serializeVector(vector))
	return err
}

// All returns every stored tool embedding, keyed by tool name.
func (s *SQLiteStore) All(ctx context.Context) (map[string][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, embedding FROM tool_embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]float64{}
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			continue
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			continue
		}
		out[name] = vec
	}
	return out, rows.Err()
}

func serializeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func deserializeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("finder: malformed embedding blob (%d bytes)", len(buf))
	}
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}
