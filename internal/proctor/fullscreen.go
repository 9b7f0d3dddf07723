package proctor

import "sync"

// Enforcer tracks mandated versus actual fullscreen presentation state for
// one attempt. Entry is requested through the shell and may be refused by
// the platform; refusal is never fatal and the attempt continues ungated so a
// student cannot be locked out by a browser that disallows scripted
// fullscreen.
type Enforcer struct {
	mu       sync.Mutex
	required bool
	active   bool
}

// NewEnforcer creates an enforcer. required comes from the attempt's
// configuration; active from the last persisted shell state.
func NewEnforcer(required, active bool) *Enforcer {
	return &Enforcer{required: required, active: active}
}

// Mandated reports whether fullscreen is required for this attempt.
func (e *Enforcer) Mandated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.required
}

// Active reports the last known actual fullscreen state.
func (e *Enforcer) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Update records the shell's reported fullscreen state and reports whether
// this constitutes a mandated-mode exit.
func (e *Enforcer) Update(active bool) (exited bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = active
	return e.required && !active
}

// NeedsReentry reports whether the shell should be asked to re-enter
// fullscreen (mandated but not currently active).
func (e *Enforcer) NeedsReentry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.required && !e.active
}

// Suppressing reports whether keyboard-shortcut suppression is in effect:
// only while fullscreen enforcement is mandated and currently active.
func (e *Enforcer) Suppressing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.required && e.active
}
