package enroll

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS encodings (
    digest TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    vector BLOB NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Cache remembers encodings by image digest so unchanged enrollment images are
// not sent to the encoder again.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the SQLite cache at dataSourceName.
func OpenCache(dataSourceName string) (*Cache, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached vector for digest. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, digest string) (vector []float32, ok bool, err error) {
	var blob []byte
	err = c.db.QueryRowContext(ctx, `SELECT vector FROM encodings WHERE digest = ?`, digest).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query encoding: %w", err)
	}

	vector, err = decodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return vector, true, nil
}

// Put stores vector for digest, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, digest, label string, vector []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO encodings (digest, label, vector) VALUES (?, ?, ?)`,
		digest, label, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("store encoding: %w", err)
	}
	return nil
}

// Len returns the number of cached encodings.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM encodings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count encodings: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vector, nil
}
