package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators at runtime.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(modules ...string) *PauseSet {
	set := &PauseSet{paused: make(map[string]bool)}
	for _, module := range modules {
		set.Set(module, true)
	}
	return set
}

func (s *PauseSet) Set(module string, paused bool) {
	key := strings.ToLower(strings.TrimSpace(module))
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.paused[key] = true
		return
	}
	delete(s.paused, key)
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[strings.ToLower(strings.TrimSpace(module))]
}
