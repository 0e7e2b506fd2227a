// Package kv is the durable key-value facade used by the route store.
//
// Values are JSON blobs. Reads never fail: a missing key, an unavailable
// backend or a corrupt blob all yield the caller's fallback. Writes report
// success as a bool and log the cause of a failure.
package kv

import (
	"errors"
	"log"

	"github.com/goccy/go-json"
)

var (
	ErrUnavailable   = errors.New("storage unavailable")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

type Backend interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, value []byte) error
	Delete(key string) error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys() ([]string, error)
}

type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get decodes the value stored under key, or returns fallback.
func Get[T any](s *Store, key string, fallback T) T {
	if s == nil || s.backend == nil {
		return fallback
	}
	data, ok, err := s.backend.Load(key)
	if err != nil {
		log.Printf("kv read %s failed: %v", key, err)
		return fallback
	}
	if !ok {
		return fallback
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Printf("kv decode %s failed: %v", key, err)
		return fallback
	}
	return v
}

func (s *Store) Set(key string, value any) bool {
	if s == nil || s.backend == nil {
		log.Printf("kv write %s failed: %v", key, ErrUnavailable)
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("kv encode %s failed: %v", key, err)
		return false
	}
	if err := s.backend.Save(key, data); err != nil {
		log.Printf("kv write %s failed: %v", key, err)
		return false
	}
	return true
}

func (s *Store) Remove(key string) {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.Delete(key); err != nil {
		log.Printf("kv remove %s failed: %v", key, err)
	}
}

// Keys lists stored keys when the backend supports it.
func (s *Store) Keys() []string {
	if s == nil || s.backend == nil {
		return nil
	}
	lister, ok := s.backend.(Lister)
	if !ok {
		return nil
	}
	keys, err := lister.Keys()
	if err != nil {
		log.Printf("kv list failed: %v", err)
		return nil
	}
	return keys
}
