// Package calculations provides a persistent cache for expensive numerical
// results (covariance matrices and related optimizer artifacts).
package calculations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache TTLs per artifact kind.
const (
	TTLOptimizer = 24 * time.Hour
)

// Cache is a namespaced blob cache backed by cache.db. Values are serialized
// with msgpack.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a new calculation cache.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// Set stores a value under (namespace, key) with the given TTL.
func (c *Cache) Set(namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(`
		INSERT INTO calculation_cache (namespace, key, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, namespace, key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Get loads the value stored under (namespace, key) into dest.
// Returns false when the entry is absent or expired.
func (c *Cache) Get(namespace, key string, dest interface{}) (bool, error) {
	var data []byte
	err := c.db.QueryRow(`
		SELECT value FROM calculation_cache
		WHERE namespace = ? AND key = ? AND expires_at > ?
	`, namespace, key, time.Now().Unix()).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache entry: %w", err)
	}

	if err := msgpack.Unmarshal(data, dest); err != nil {
		// Treat undecodable entries as a miss so callers recalculate.
		c.log.Warn().
			Str("namespace", namespace).
			Err(err).
			Msg("Failed to unmarshal cached value, treating as miss")
		return false, nil
	}

	return true, nil
}

// PurgeExpired deletes expired entries and returns the number removed.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM calculation_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}

	removed, _ := res.RowsAffected()
	if removed > 0 {
		c.log.Info().Int64("removed", removed).Msg("Purged expired cache entries")
	}
	return removed, nil
}
