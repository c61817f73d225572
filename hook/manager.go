package hook

import (
	"sync"
	"sync/atomic"
	"time"
)

// Manager manages registration and invocation of hooks. Reads take a
// snapshot of the hook slice via an atomic pointer so invocation never
// blocks on registration.
type Manager struct {
	mu       sync.Mutex
	hooksPtr atomic.Pointer[[]Hook]
	index    map[string]int
}

func NewManager() *Manager {
	m := &Manager{
		index: make(map[string]int),
	}
	hooks := make([]Hook, 0)
	m.hooksPtr.Store(&hooks)
	return m
}

// Add registers a hook. Returns an error if a hook with the same ID already exists.
func (m *Manager) Add(hook Hook) error {
	if hook == nil {
		return ErrEmptyHookID
	}

	id := hook.ID()
	if id == "" {
		return ErrEmptyHookID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[id]; exists {
		return ErrHookAlreadyExists
	}

	oldHooks := *m.hooksPtr.Load()
	newHooks := make([]Hook, len(oldHooks)+1)
	copy(newHooks, oldHooks)
	newHooks[len(oldHooks)] = hook

	m.index[id] = len(oldHooks)
	m.hooksPtr.Store(&newHooks)

	return nil
}

// Remove unregisters a hook by its ID.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return ErrHookNotFound
	}

	oldHooks := *m.hooksPtr.Load()
	newHooks := make([]Hook, len(oldHooks)-1)
	copy(newHooks[:idx], oldHooks[:idx])
	copy(newHooks[idx:], oldHooks[idx+1:])

	delete(m.index, id)
	for i := idx; i < len(newHooks); i++ {
		m.index[newHooks[i].ID()] = i
	}

	m.hooksPtr.Store(&newHooks)

	return nil
}

func (m *Manager) Get(id string) (Hook, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return nil, false
	}

	hooks := *m.hooksPtr.Load()
	return hooks[idx], true
}

func (m *Manager) List() []Hook {
	hooks := *m.hooksPtr.Load()
	result := make([]Hook, len(hooks))
	copy(result, hooks)
	return result
}

func (m *Manager) Count() int {
	hooks := *m.hooksPtr.Load()
	return len(hooks)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldHooks := *m.hooksPtr.Load()
	for _, h := range oldHooks {
		_ = h.Stop()
	}

	newHooks := make([]Hook, 0)
	m.hooksPtr.Store(&newHooks)
	m.index = make(map[string]int)
}

// OnConnect invokes all OnConnect hooks, aborting the connect attempt on the first error.
func (m *Manager) OnConnect(opts *ConnectOptions) error {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnConnect) {
			if err := hook.OnConnect(opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) OnConnected(sessionPresent bool) {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnConnected) {
			_ = hook.OnConnected(sessionPresent)
		}
	}
}

func (m *Manager) OnDisconnect(err error) {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnDisconnect) {
			_ = hook.OnDisconnect(err)
		}
	}
}

// OnPublish invokes all OnPublish hooks, vetoing the publish on the first error.
func (m *Manager) OnPublish(msg *PublishMessage) error {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnPublish) {
			if err := hook.OnPublish(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnMessage invokes the OnMessage hooks for an inbound dispatch, stopping at
// and returning the first error.
func (m *Manager) OnMessage(msg *PublishMessage) error {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnMessage) {
			if err := hook.OnMessage(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) OnReconnect(attempt int, delay time.Duration) {
	hooks := *m.hooksPtr.Load()
	for _, hook := range hooks {
		if hook.Provides(OnReconnect) {
			_ = hook.OnReconnect(attempt, delay)
		}
	}
}
