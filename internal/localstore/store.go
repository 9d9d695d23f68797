// Package localstore is the device-local durable key/value storage used by
// the check-in client: credential bindings, the proximity timestamp, cached
// profiles, notice markers, history and preferences.
package localstore

import (
	"errors"
	"sync"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned by GetJSON when the key is absent.
var ErrNotFound = errors.New("localstore: key not found")

// Store is a string key/value store with browser-storage semantics: writes
// are durable once Set returns.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// GetJSON decodes the value at key into dst.
func GetJSON(s Store, key string, dst any) error {
	raw, ok, err := s.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal([]byte(raw), dst)
}

// SetJSON encodes v and stores it at key.
func SetJSON(s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, string(b))
}

// Memory is an in-process Store, used for tests and for sessions that must
// not leave anything on disk.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
