package metric

import (
	"sync"

	"codeberg.org/mutker/ridelogger/internal/errors"
)

// Store holds the current value of every Key. Writers are bindings of
// active device sessions and the supervisor's reset; readers take
// Snapshots. Each call is one critical section, so a Snapshot never sees
// a partially applied SetMany or Reset.
type Store struct {
	mu    sync.RWMutex
	slots [numKeys]float64
}

// NewStore returns a store with every slot at 0.
func NewStore() *Store {
	return &Store{}
}

// Set overwrites one slot.
func (s *Store) Set(key Key, value float64) error {
	if !key.Valid() {
		return errors.New().WithData(ErrUnknownKey, key)
	}

	s.mu.Lock()
	s.slots[key] = value
	s.mu.Unlock()

	return nil
}

// SetMany overwrites a co-arriving group of slots as one unit. Nothing is
// written when the argument lengths differ or a key is unknown.
func (s *Store) SetMany(keys []Key, values []float64) error {
	errFactory := errors.New()

	if len(keys) != len(values) {
		return errFactory.WithData(ErrArityMismatch, struct {
			Keys   int
			Values int
		}{
			Keys:   len(keys),
			Values: len(values),
		})
	}

	for _, k := range keys {
		if !k.Valid() {
			return errFactory.WithData(ErrUnknownKey, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, k := range keys {
		s.slots[k] = values[i]
	}

	return nil
}

// Reset sets the named slots to 0 and leaves the rest untouched.
func (s *Store) Reset(keys []Key) error {
	for _, k := range keys {
		if !k.Valid() {
			return errors.New().WithData(ErrUnknownKey, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		s.slots[k] = 0
	}

	return nil
}

// Get returns the current value of one slot.
func (s *Store) Get(key Key) float64 {
	if !key.Valid() {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[key]
}

// Snapshot copies every slot at one point in time.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{values: s.slots}
}

// Snapshot is an immutable copy of a Store.
type Snapshot struct {
	values [numKeys]float64
}

// Get returns the value recorded for key, 0 for unknown keys.
func (s Snapshot) Get(key Key) float64 {
	if !key.Valid() {
		return 0
	}
	return s.values[key]
}

// Map returns the snapshot keyed by key name.
func (s Snapshot) Map() map[string]float64 {
	m := make(map[string]float64, numKeys)
	for k, v := range s.values {
		m[Key(k).String()] = v
	}
	return m
}
