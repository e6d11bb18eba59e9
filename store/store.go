package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrClosed is returned when the cache is used after Close.
	ErrClosed = errors.New("path cache closed")
)

var (
	pathsBucket = []byte("telegram_paths")
)

// DefaultTTL is how long a resolved Telegram file path is reused. Bot API
// download links are guaranteed for at least one hour.
const DefaultTTL = 55 * time.Minute

// pathRecord is one cached file path.
type pathRecord struct {
	FilePath string    `json:"file_path"`
	Expires  time.Time `json:"expires"`
}

// PathCache remembers Telegram file paths by file id, backed by bbolt.
type PathCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewPathCache opens or creates the cache database at path. A ttl of zero
// uses DefaultTTL.
func NewPathCache(path string, ttl time.Duration) (*PathCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pathsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create paths bucket: %w", err)
	}

	return &PathCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Put stores filePath for fileID until the TTL passes.
func (c *PathCache) Put(fileID, filePath string) error {
	data, err := json.Marshal(pathRecord{FilePath: filePath, Expires: c.now().Add(c.ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal path record: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pathsBucket).Put([]byte(fileID), data)
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("failed to put path: %w", err)
	}
	return nil
}

// Get returns the cached path for fileID. Expired entries are reported as
// missing and left for Prune.
func (c *PathCache) Get(fileID string) (string, bool, error) {
	var rec pathRecord
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(pathsBucket).Get([]byte(fileID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal path record: %w", err)
		}
		found = true
		return nil
	})
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return "", false, ErrClosed
	}
	if err != nil {
		return "", false, err
	}

	if !found || !c.now().Before(rec.Expires) {
		return "", false, nil
	}
	return rec.FilePath, true, nil
}

// Prune deletes expired entries and returns how many were removed.
func (c *PathCache) Prune() (int, error) {
	now := c.now()
	var removed int
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pathsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec pathRecord
			if err := json.Unmarshal(v, &rec); err != nil || !now.Before(rec.Expires) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune paths: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database.
func (c *PathCache) Close() error {
	return c.db.Close()
}
