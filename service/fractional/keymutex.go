package fractional

import "sync"

// keyMutex serializes operations per key. Distributions for the same
// (mint, sender) pair must not interleave or the balance check races with
// in-flight transfers. Mutexes are kept for the process lifetime; the key
// space is bounded by the number of share tokens.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
