package app

import (
	"sync"
	"time"

	"voice-quiz-control/internal/domain"
)

// DefaultModeDebounce is how long IsChanging stays true after a mode switch.
const DefaultModeDebounce = 300 * time.Millisecond

// ModeMachine owns the UI mode. Transitions are unconditional; callers validate.
type ModeMachine struct {
	debounce time.Duration

	mu         sync.RWMutex
	mode       domain.UIMode
	changing   bool
	generation uint64
	timer      *time.Timer
}

// NewModeMachine starts in placeholder mode. A non-positive debounce disables the changing flag.
func NewModeMachine(debounce time.Duration) *ModeMachine {
	return &ModeMachine{
		debounce: debounce,
		mode:     domain.ModePlaceholder,
	}
}

// SetMode switches to target and raises the changing flag for the debounce window.
func (m *ModeMachine) SetMode(target domain.UIMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mode = target
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.debounce <= 0 {
		m.changing = false
		return
	}
	m.changing = true
	gen := m.generation
	m.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// only the latest switch may lower the flag
		if m.generation == gen {
			m.changing = false
			m.timer = nil
		}
	})
}

// Mode returns the current mode.
func (m *ModeMachine) Mode() domain.UIMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// IsChanging reports whether a mode switch happened within the debounce window.
func (m *ModeMachine) IsChanging() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changing
}

// Close stops a pending debounce timer and lowers the flag.
func (m *ModeMachine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.changing = false
}
