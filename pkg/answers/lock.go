package answers

import "sync"

// keyedMutex hands out one mutex per key. Idle mutexes are reclaimed via
// reference counting so the map does not grow with every document ever
// merged.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*lockState
}

type lockState struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]*lockState)}
}

// lock acquires the mutex for key and returns its release function.
func (m *keyedMutex) lock(key string) (unlock func()) {
	m.mu.Lock()
	st, ok := m.held[key]
	if !ok {
		st = &lockState{}
		m.held[key] = st
	}
	st.refs++
	m.mu.Unlock()

	st.mu.Lock()
	return func() {
		st.mu.Unlock()
		m.mu.Lock()
		st.refs--
		if st.refs == 0 {
			delete(m.held, key)
		}
		m.mu.Unlock()
	}
}
