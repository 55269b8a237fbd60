package utils

import (
	"sync"
)

// OptionalMutex is a sync.Mutex that only takes the lock when UseMutex is set. The zero value
// does nothing, which is how the heap runs unless it was created with CreateSynchronized.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
