package cache

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const (
	bucketDistros = "distros"
	bucketMeta    = "meta"

	keySchema = "schema"
)

// DistroState records the index built for a distribution so an unchanged
// repository set can be reopened instead of rebuilt.
type DistroState struct {
	SackPath    string            `json:"sack_path"`
	Fingerprint string            `json:"fingerprint"`
	Revisions   map[string]string `json:"revisions"`
	Packages    int               `json:"packages"`
	BuiltAt     time.Time         `json:"built_at"`
}

// StateStore persists DistroState across restarts.
type StateStore interface {
	Get(distro string) (*DistroState, error)
	Put(distro string, state DistroState) error
	Delete(distro string) error
}

// Store keeps DistroState records in a bbolt database.
type Store struct {
	mu sync.RWMutex
	db *bbolt.DB
}

// OpenStore opens or creates the state database at path.
func OpenStore(path string, schema int) (*Store, error) {
	if err := fsutil.EnsureFileDir(path); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, fsutil.FileModeSecure, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		want := []byte(fmt.Sprint(schema))
		if got := meta.Get([]byte(keySchema)); got != nil && string(got) != string(want) {
			// Indexes built by another schema version cannot be reopened.
			if err := tx.DeleteBucket([]byte(bucketDistros)); err != nil && !stderrors.Is(err, berrors.ErrBucketNotFound) {
				return err
			}
		}
		if err := meta.Put([]byte(keySchema), want); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists([]byte(bucketDistros))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns the recorded state for distro, or nil when none exists.
func (s *Store) Get(distro string) (*DistroState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	var state *DistroState
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketDistros)).Get([]byte(distro))
		if data == nil {
			return nil
		}
		state = &DistroState{}
		return json.Unmarshal(data, state)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read state for %s", distro)
	}
	return state, nil
}

// Put records state for distro, replacing any previous record.
func (s *Store) Put(distro string, state DistroState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrStoreClosed
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDistros)).Put([]byte(distro), data)
	})
}

// Delete removes the record for distro.
func (s *Store) Delete(distro string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDistros)).Delete([]byte(distro))
	})
}

// List returns the distributions that have a recorded state, sorted.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDistros)).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	sort.Strings(ids)
	return ids, err
}
