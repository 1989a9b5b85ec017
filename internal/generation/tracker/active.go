package tracker

import (
	"sort"
	"sync"
)

// ActiveSet is the process-wide set of in-flight sessions. A slot is busy
// while any active session carries its number.
type ActiveSet struct {
	mu       sync.RWMutex
	sessions map[string]*int
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{sessions: map[string]*int{}}
}

// Add registers sessionID. With exclusive set it refuses when the slot is
// already busy. It reports whether the session was added.
func (a *ActiveSet) Add(sessionID string, slot *int, exclusive bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; ok {
		return false
	}
	if exclusive && slot != nil && a.slotBusyLocked(*slot) {
		return false
	}
	var s *int
	if slot != nil {
		v := *slot
		s = &v
	}
	a.sessions[sessionID] = s
	return true
}

func (a *ActiveSet) Remove(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

func (a *ActiveSet) Has(sessionID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.sessions[sessionID]
	return ok
}

func (a *ActiveSet) IDs() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		out = append(out, id)
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (a *ActiveSet) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

func (a *ActiveSet) SlotBusy(slot int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.slotBusyLocked(slot)
}

func (a *ActiveSet) slotBusyLocked(slot int) bool {
	for _, s := range a.sessions {
		if s != nil && *s == slot {
			return true
		}
	}
	return false
}
