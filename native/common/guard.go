package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switches consulted before any module operation.
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

// PauseSet is a concurrency-safe PauseView backed by an in-memory set. The
// admin surface flips switches at runtime; module engines only read them.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// SetPaused toggles the pause switch for a module.
func (p *PauseSet) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
	} else {
		delete(p.paused, module)
	}
}
