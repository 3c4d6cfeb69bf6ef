// ABOUTME: Badger-backed store for full-size contact photos
// ABOUTME: Data rows reference photos by id; Cleanup removes the ones nothing references
package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
)

const keyPrefix = "photo/"

// DefaultCleanupGrace keeps freshly stored photos out of cleanup while the
// transaction that references them may still be open.
const DefaultCleanupGrace = time.Hour

type entry struct {
	CreatedAt time.Time `json:"created_at"`
	Image     []byte    `json:"image"`
}

type Store struct {
	db    *badger.DB
	now   func() time.Time
	grace time.Duration
}

// Open opens or creates a store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo store: %w", err)
	}
	return &Store{db: db, now: time.Now, grace: DefaultCleanupGrace}, nil
}

// SetCleanupGrace changes how old a photo must be before Cleanup may remove it.
func (s *Store) SetCleanupGrace(d time.Duration) { s.grace = d }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(_ context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", models.ValidationError("photo is empty")
	}
	id := uuid.New().String()
	value, err := json.Marshal(entry{CreatedAt: s.now().UTC(), Image: image})
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), value)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return id, nil
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	var e entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("photo %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read photo %s: %w", id, err)
	}
	return e.Image, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// IDs lists every stored photo id.
func (s *Store) IDs(context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	return ids, err
}

// CleanupResult reports what Cleanup did.
type CleanupResult struct {
	// Removed are stored photos nothing referenced.
	Removed []string
	// Missing are referenced ids with no stored photo.
	Missing []string
}

// Cleanup deletes stored photos not in used that are older than the grace
// period, and reports used ids the store does not have.
func (s *Store) Cleanup(ctx context.Context, used map[string]bool) (CleanupResult, error) {
	var res CleanupResult
	cutoff := s.now().Add(-s.grace)
	seen := make(map[string]bool)

	err := s.db.Update(func(txn *badger.Txn) error {
		doomed, err := s.unreferenced(txn, used, cutoff, seen)
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := txn.Delete(k); err != nil {
				return err
			}
			res.Removed = append(res.Removed, strings.TrimPrefix(string(k), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return CleanupResult{}, fmt.Errorf("failed to clean up photos: %w", err)
	}

	for id := range used {
		if !seen[id] {
			res.Missing = append(res.Missing, id)
		}
	}
	sort.Strings(res.Missing)
	logger := logctx.FromContext(ctx)
	logger.Info().
		Int("removed", len(res.Removed)).
		Int("missing", len(res.Missing)).
		Msg("photo cleanup complete")
	return res, nil
}

// unreferenced returns the keys of photos outside used created before cutoff,
// recording every stored id in seen.
func (s *Store) unreferenced(txn *badger.Txn, used map[string]bool, cutoff time.Time, seen map[string]bool) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(keyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var doomed [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), keyPrefix)
		seen[id] = true
		if used[id] {
			continue
		}
		var e entry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
			return nil, err
		}
		if e.CreatedAt.After(cutoff) {
			continue
		}
		doomed = append(doomed, item.KeyCopy(nil))
	}
	return doomed, nil
}
