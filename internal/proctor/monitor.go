package proctor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// Hooks connect the monitor to the attempt engine and the shell. Every hook
// is invoked from the signal-delivery goroutine; implementations do their
// own locking.
type Hooks struct {
	// Violation increments the counter for kind and returns the updated
	// tallies. modal indicates the warning requires explicit dismissal.
	Violation func(kind model.ViolationKind, modal bool) model.ViolationCounts
	// Enforce asks the shell to (re-)enter fullscreen presentation mode.
	Enforce func()
	// Focus reports focus loss/return so the shell can degrade interaction
	// while unfocused. Timers keep running either way.
	Focus func(has bool)
	// FullscreenState persists the shell's actual fullscreen state.
	FullscreenState func(active bool)
	// ForceFinish fires when every configured threshold is simultaneously
	// met or exceeded.
	ForceFinish func()
}

// Config tunes the monitor's signal collapsing.
type Config struct {
	// DebounceWindow collapses near-simultaneous fullscreen/tab-switch
	// signals from different listeners into a single increment. The same
	// physical event (say, Alt+Tab) reaches us as a blur, a visibility
	// change and a poll miss.
	DebounceWindow time.Duration
	// VisibilityGate additionally suppresses visibility-hidden repeats.
	VisibilityGate time.Duration
	// Limits is the per-kind threshold set for the forced-finish check.
	Limits model.ViolationLimits
}

// Monitor converts raw shell signals into violation increments. It holds no
// counters itself (the engine owns the attempt record) but it owns the
// debouncing, the key deny list, and the AND-of-thresholds policy.
type Monitor struct {
	cfg      Config
	enforcer *Enforcer
	hooks    Hooks
	now      func() time.Time
	log      zerolog.Logger

	mu            sync.Mutex
	lastWarningAt time.Time
	lastVisibleAt time.Time
	unsubscribe   []func()
}

// NewMonitor creates a monitor bound to an enforcer and engine hooks.
func NewMonitor(cfg Config, enforcer *Enforcer, hooks Hooks, now func() time.Time, log zerolog.Logger) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:      cfg,
		enforcer: enforcer,
		hooks:    hooks,
		now:      now,
		log:      log.With().Str("component", "violation_monitor").Logger(),
	}
}

var monitoredKinds = []SignalKind{
	SignalFullscreenChange,
	SignalVisibilityHidden,
	SignalWindowBlur,
	SignalWindowFocus,
	SignalFocusPollMiss,
	SignalPageUnload,
	SignalKeyDown,
	SignalClick,
	SignalFacePresence,
	SignalNoise,
}

// Attach subscribes the monitor to every signal kind on the source.
func (m *Monitor) Attach(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range monitoredKinds {
		m.unsubscribe = append(m.unsubscribe, source.Subscribe(kind, m.Handle))
	}
}

// Detach removes every subscription. Called when the attempt leaves the
// running state, whatever the exit path.
func (m *Monitor) Detach() {
	m.mu.Lock()
	unsubs := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Handle processes one signal.
func (m *Monitor) Handle(sig Signal) {
	at := sig.At
	if at.IsZero() {
		at = m.now()
	}

	switch sig.Kind {
	case SignalFullscreenChange:
		exited := m.enforcer.Update(sig.Active)
		m.hooks.FullscreenState(sig.Active)
		if exited {
			if m.debounced(at) {
				m.record(model.ViolationFullscreen, true)
			}
			// Re-request fullscreen even when the increment was collapsed.
			m.hooks.Enforce()
		}

	case SignalKeyDown:
		if !m.enforcer.Suppressing() {
			return
		}
		switch ClassifyKey(sig.Key) {
		case KeyFullscreenGesture:
			if m.debounced(at) {
				m.record(model.ViolationFullscreen, true)
			}
			m.hooks.Enforce()
		case KeyBlocked:
			if m.debounced(at) {
				m.record(model.ViolationTabSwitch, true)
			}
		}

	case SignalVisibilityHidden:
		m.mu.Lock()
		gated := at.Sub(m.lastVisibleAt) <= m.cfg.VisibilityGate && !m.lastVisibleAt.IsZero()
		m.lastVisibleAt = at
		m.mu.Unlock()
		if !gated && m.debounced(at) {
			m.record(model.ViolationTabSwitch, true)
		}

	case SignalWindowBlur:
		m.hooks.Focus(false)
		if m.debounced(at) {
			m.record(model.ViolationTabSwitch, true)
		}

	case SignalWindowFocus:
		m.hooks.Focus(true)

	case SignalFocusPollMiss, SignalPageUnload:
		if m.debounced(at) {
			m.record(model.ViolationTabSwitch, true)
		}

	case SignalClick:
		if m.enforcer.NeedsReentry() {
			m.hooks.Enforce()
		}

	case SignalFacePresence:
		if !sig.Detected {
			m.record(model.ViolationFaceAbsent, false)
		}

	case SignalNoise:
		m.record(model.ViolationNoise, true)
	}
}

// debounced reports whether a fullscreen/tab-switch increment may proceed
// and, if so, claims the window. Face and noise counters are not debounced:
// their detectors already emit discrete events.
func (m *Monitor) debounced(at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastWarningAt.IsZero() && at.Sub(m.lastWarningAt) < m.cfg.DebounceWindow {
		return false
	}
	m.lastWarningAt = at
	return true
}

func (m *Monitor) record(kind model.ViolationKind, modal bool) {
	counts := m.hooks.Violation(kind, modal)
	m.log.Debug().
		Str("kind", string(kind)).
		Int("count", counts.Count(kind)).
		Msg("Violation recorded")

	if counts.MeetsAll(m.cfg.Limits) {
		m.log.Warn().
			Int("fullscreen", counts.FullscreenExits).
			Int("tab_switch", counts.TabSwitches).
			Int("noise", counts.NoiseEvents).
			Int("face_absent", counts.FaceAbsentEvents).
			Msg("All violation thresholds met, forcing finish")
		m.hooks.ForceFinish()
	}
}
