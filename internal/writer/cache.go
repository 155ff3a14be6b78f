package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var fingerprintBucket = []byte("fingerprints")

// FingerprintCache is a local bbolt-backed set of fingerprints this worker has
// already written. It is an optimization layer in front of the store-side
// existence check, not the source of truth; a cold or lost cache only costs
// extra lookups.
type FingerprintCache struct {
	db *bolt.DB
}

// NewFingerprintCache opens (or creates) the cache database at path.
func NewFingerprintCache(path string) (*FingerprintCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fingerprintBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	log.Debug().Str("path", path).Msg("Fingerprint cache opened")
	return &FingerprintCache{db: db}, nil
}

// Seen reports which of the given fingerprints are present in the cache.
func (c *FingerprintCache) Seen(fingerprints []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(fingerprints))
	if c == nil || len(fingerprints) == 0 {
		return seen, nil
	}

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(fingerprintBucket)
		for _, fp := range fingerprints {
			if b.Get([]byte(fp)) != nil {
				seen[fp] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint cache: %w", err)
	}
	return seen, nil
}

// Add marks the given fingerprints as written.
func (c *FingerprintCache) Add(fingerprints []string) error {
	if c == nil || len(fingerprints) == 0 {
		return nil
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(fingerprintBucket)
		for _, fp := range fingerprints {
			if err := b.Put([]byte(fp), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update fingerprint cache: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *FingerprintCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}
