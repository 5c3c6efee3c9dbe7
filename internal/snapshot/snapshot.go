// Package snapshot keeps the last applied case collection on disk so it can be
// shown without reaching the store.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/models"
)

// ErrEmpty is returned by Load before anything was saved.
var ErrEmpty = errors.New("no snapshot saved")

var (
	caseKeyPrefix = []byte("case:")
	orderKey      = []byte("meta:order")
	savedAtKey    = []byte("meta:saved_at")
)

const maxValueSize = 8 << 20

// Snapshot is a saved collection.
type Snapshot struct {
	Cases   []models.Case
	SavedAt time.Time
}

// Store is a bitcask backed snapshot store.
type Store struct {
	mu  sync.Mutex
	db  *bitcask.Bitcask
	now func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bitcask.Open(path, bitcask.WithMaxValueSize(maxValueSize))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store at %s: %w", path, err)
	}
	log.Debugf("Snapshot store opened at %s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Save replaces the stored collection with cases.
func (s *Store) Save(cases []models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(cases))
	order := make([]int, 0, len(cases))
	for _, kase := range cases {
		value, err := json.Marshal(kase)
		if err != nil {
			return fmt.Errorf("encoding case %d: %w", kase.ID, err)
		}
		key := caseKey(kase.ID)
		if err := s.db.Put(key, value); err != nil {
			return fmt.Errorf("storing case %d: %w", kase.ID, err)
		}
		keep[string(key)] = struct{}{}
		order = append(order, kase.ID)
	}

	var stale [][]byte
	err := s.db.Scan(caseKeyPrefix, func(key []byte) error {
		if _, ok := keep[string(key)]; !ok {
			stale = append(stale, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning snapshot: %w", err)
	}
	for _, key := range stale {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}

	orderValue, err := json.Marshal(order)
	if err != nil {
		return err
	}
	if err := s.db.Put(orderKey, orderValue); err != nil {
		return fmt.Errorf("storing order: %w", err)
	}
	savedAt, err := s.now().UTC().MarshalText()
	if err != nil {
		return err
	}
	if err := s.db.Put(savedAtKey, savedAt); err != nil {
		return fmt.Errorf("storing timestamp: %w", err)
	}
	return s.db.Sync()
}

// Load returns the saved collection in its original order.
func (s *Store) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderValue, err := s.db.Get(orderKey)
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return Snapshot{}, ErrEmpty
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("reading order: %w", err)
	}
	var order []int
	if err := json.Unmarshal(orderValue, &order); err != nil {
		return Snapshot{}, fmt.Errorf("decoding order: %w", err)
	}

	snap := Snapshot{Cases: make([]models.Case, 0, len(order))}
	for _, id := range order {
		value, err := s.db.Get(caseKey(id))
		if err != nil {
			log.WithError(err).WithField("case_id", id).Warn("Snapshot entry missing")
			continue
		}
		var kase models.Case
		if err := json.Unmarshal(value, &kase); err != nil {
			log.WithError(err).WithField("case_id", id).Warn("Snapshot entry unreadable")
			continue
		}
		snap.Cases = append(snap.Cases, kase)
	}

	if raw, err := s.db.Get(savedAtKey); err == nil {
		_ = snap.SavedAt.UnmarshalText(raw)
	}
	return snap, nil
}

// CasesRefreshed saves every applied refresh. Failures are logged.
func (s *Store) CasesRefreshed(cases []models.Case) {
	if err := s.Save(cases); err != nil {
		log.WithError(err).Warn("Failed to save case snapshot")
	}
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func caseKey(id int) []byte {
	return append(append([]byte(nil), caseKeyPrefix...), strconv.Itoa(id)...)
}
