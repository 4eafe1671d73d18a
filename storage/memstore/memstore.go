// Package memstore provides the in-memory Store implementation. It stands
// in for browser local storage in a webview shell and doubles as the test
// store.
package memstore

import (
	"sync"

	"github.com/tmsfleet/go-auth-client/storage"
)

var _ storage.Store = (*MemStore)(nil)

type MemStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemStore {
	return &MemStore{
		values: make(map[string]string),
	}
}

func (ms *MemStore) Read(key string) (string, bool) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	value, ok := ms.values[key]
	return value, ok
}

func (ms *MemStore) Write(key, value string) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.values[key] = value
}

func (ms *MemStore) Remove(key string) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	delete(ms.values, key)
}

// Len reports how many keys are stored.
func (ms *MemStore) Len() int {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	return len(ms.values)
}
