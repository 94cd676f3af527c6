package nvs

import (
	"fmt"
	"sync"
)

type memoryEngine struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

func newMemoryEngine() *memoryEngine {
	return &memoryEngine{namespaces: make(map[string]map[string][]byte)}
}

func (m *memoryEngine) name() string { return "memory" }

func (m *memoryEngine) get(namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.namespaces[namespace][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memoryEngine) hasNamespace(namespace string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[namespace]
	return ok, nil
}

func (m *memoryEngine) apply(namespace string, sets map[string][]byte, eraseAll bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok || eraseAll {
		ns = make(map[string][]byte, len(sets))
		m.namespaces[namespace] = ns
	}
	for k, v := range sets {
		val := make([]byte, len(v))
		copy(val, v)
		ns[k] = val
	}
	return nil
}

func (m *memoryEngine) close() error { return nil }
