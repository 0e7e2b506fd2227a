package kv

import (
	"sort"
	"sync"
)

// MemoryBackend keeps values in process memory. Limit caps the total number
// of stored bytes when positive.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string][]byte
	Limit    int
	disabled bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string][]byte{}}
}

// SetDisabled makes every call fail with ErrUnavailable.
func (m *MemoryBackend) SetDisabled(disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = disabled
}

func (m *MemoryBackend) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return nil, false, ErrUnavailable
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Save(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	if m.Limit > 0 {
		used := len(value)
		for k, v := range m.data {
			if k != key {
				used += len(v)
			}
		}
		if used > m.Limit {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return nil, ErrUnavailable
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Raw writes bytes without encoding, for seeding corrupt values.
func (m *MemoryBackend) Raw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}
