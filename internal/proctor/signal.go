// Package proctor turns raw browser-shell signals into violation counter
// increments and fullscreen enforcement directives.
//
// The shell (the assessment-taking page) owns the real DOM listeners and
// relays every occurrence over the WebSocket stream; nothing in here touches
// a browser API. Tests inject synthetic signals through the same Source
// interface.
package proctor

import (
	"sync"
	"time"
)

// SignalKind identifies one class of shell-observed event.
type SignalKind string

const (
	// SignalFullscreenChange carries the new fullscreen state in Active.
	SignalFullscreenChange SignalKind = "fullscreen_change"
	// SignalVisibilityHidden fires when the page visibility becomes hidden.
	SignalVisibilityHidden SignalKind = "visibility_hidden"
	// SignalWindowBlur / SignalWindowFocus track window focus transitions.
	SignalWindowBlur  SignalKind = "window_blur"
	SignalWindowFocus SignalKind = "window_focus"
	// SignalFocusPollMiss fires when the shell's periodic poll finds the
	// document without input focus.
	SignalFocusPollMiss SignalKind = "focus_poll_miss"
	// SignalPageUnload fires on an attempted navigation/reload.
	SignalPageUnload SignalKind = "page_unload"
	// SignalKeyDown carries a pressed key combination in Key.
	SignalKeyDown SignalKind = "key_down"
	// SignalClick fires on any pointer click; used to recover fullscreen
	// on platforms that require a user gesture.
	SignalClick SignalKind = "click"
	// SignalFacePresence carries the face detector's state in Detected.
	SignalFacePresence SignalKind = "face_presence"
	// SignalNoise fires once per discrete ambient-noise event.
	SignalNoise SignalKind = "noise"
)

// KeyPress describes a key combination as reported by the shell.
type KeyPress struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
}

// Signal is one shell-observed event.
type Signal struct {
	Kind SignalKind
	At   time.Time

	// Active is the fullscreen state for SignalFullscreenChange.
	Active bool
	// Detected is the face-presence state for SignalFacePresence.
	Detected bool
	// Key is set for SignalKeyDown.
	Key KeyPress
}

// Source delivers signals to subscribers. Subscribe returns an unsubscribe
// function; callers must invoke every unsubscribe when the attempt leaves
// the running state so no handler outlives its exam view.
type Source interface {
	Subscribe(kind SignalKind, handler func(Signal)) (unsubscribe func())
}

// Relay is an externally fed Source. The WebSocket handler emits relayed
// browser events into it; tests emit synthetic ones.
type Relay struct {
	mu       sync.Mutex
	nextID   int
	handlers map[SignalKind]map[int]func(Signal)
}

// NewRelay creates an empty signal relay.
func NewRelay() *Relay {
	return &Relay{handlers: make(map[SignalKind]map[int]func(Signal))}
}

// Subscribe registers a handler for one signal kind.
func (r *Relay) Subscribe(kind SignalKind, handler func(Signal)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers[kind] == nil {
		r.handlers[kind] = make(map[int]func(Signal))
	}
	id := r.nextID
	r.nextID++
	r.handlers[kind][id] = handler

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers[kind], id)
	}
}

// Emit dispatches a signal to every handler subscribed to its kind.
func (r *Relay) Emit(sig Signal) {
	r.mu.Lock()
	handlers := make([]func(Signal), 0, len(r.handlers[sig.Kind]))
	for _, h := range r.handlers[sig.Kind] {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(sig)
	}
}
