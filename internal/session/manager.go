package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/store"
)

// PaperFetcher retrieves question papers from the assessment platform.
type PaperFetcher interface {
	FlatPaper(ctx context.Context, contestID string) (*model.ExamPaper, error)
	SectionedPaper(ctx context.Context, contestID string) (*model.ExamPaper, error)
}

// StartOptions carries the attempt configuration the shell supplies when
// starting or resuming.
type StartOptions struct {
	Mode               model.AttemptMode
	FullscreenRequired bool
	PassPercentage     float64
	Publish            bool
}

// Manager is the registry of live attempt engines, keyed by contest and
// student. Start is idempotent: a second call for the same pair returns the
// running engine, and a reload resumes from the persisted attempt record.
type Manager struct {
	deps    Deps
	fetcher PaperFetcher
	log     zerolog.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates an empty registry.
func NewManager(deps Deps, fetcher PaperFetcher) *Manager {
	return &Manager{
		deps:    deps,
		fetcher: fetcher,
		log:     deps.Logger.With().Str("component", "attempt_manager").Logger(),
		engines: make(map[string]*Engine),
	}
}

// Start returns the engine for the pair, creating and starting one if
// needed. resumed reports whether a persisted attempt record was picked up
// instead of a fresh one being created. On resume the persisted record is
// authoritative: the pass percentage, publish flag and fullscreen
// requirement in opts are ignored, so a reload cannot weaken the attempt's
// original configuration.
func (m *Manager) Start(ctx context.Context, contestID, studentID string, opts StartOptions) (engine *Engine, resumed bool, err error) {
	key := model.AttemptKey(contestID, studentID)

	m.mu.Lock()
	if eng, ok := m.engines[key]; ok {
		m.mu.Unlock()
		return eng, true, nil
	}
	m.mu.Unlock()

	paper, err := m.fetchPaper(ctx, contestID, opts.Mode)
	if err != nil {
		return nil, false, err
	}

	attempt, err := m.deps.Store.Load(ctx, contestID, studentID)
	switch {
	case err == nil:
		resumed = true
	case errors.Is(err, store.ErrNotFound):
		attempt = model.NewExamAttempt(paper, studentID, m.clock().Now())
		attempt.FullscreenRequired = opts.FullscreenRequired
		attempt.PassPercentage = opts.PassPercentage
		attempt.Publish = opts.Publish
	default:
		// The store is a cache of the authoritative start anchor. If it is
		// unreachable we fail the start rather than silently handing out a
		// fresh clock.
		return nil, false, fmt.Errorf("loading attempt record: %w", err)
	}

	m.mu.Lock()
	if eng, ok := m.engines[key]; ok {
		// Lost the race to a concurrent start for the same pair.
		m.mu.Unlock()
		return eng, true, nil
	}
	eng := NewEngine(m.deps, paper, attempt)
	eng.onFinished = func() { m.remove(key) }
	m.engines[key] = eng
	m.mu.Unlock()

	if err := eng.Start(ctx); err != nil {
		m.remove(key)
		return nil, false, err
	}

	m.log.Info().
		Str("contest_id", contestID).
		Str("student_id", studentID).
		Bool("resumed", resumed).
		Msg("Attempt engine registered")
	return eng, resumed, nil
}

// Get returns the live engine for the pair, if any.
func (m *Manager) Get(contestID, studentID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[model.AttemptKey(contestID, studentID)]
	return eng, ok
}

// Len reports the number of live engines.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Shutdown stops every engine's ticker. Attempt records stay in the store,
// so engines rebuild on the next start after a restart.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	m.mu.Unlock()

	for _, eng := range engines {
		eng.stopTicker()
		eng.DetachSource()
	}
}

func (m *Manager) remove(key string) {
	m.mu.Lock()
	delete(m.engines, key)
	m.mu.Unlock()
}

func (m *Manager) fetchPaper(ctx context.Context, contestID string, mode model.AttemptMode) (*model.ExamPaper, error) {
	if mode == model.ModeSectioned {
		return m.fetcher.SectionedPaper(ctx, contestID)
	}
	return m.fetcher.FlatPaper(ctx, contestID)
}

func (m *Manager) clock() Clock {
	if m.deps.Clock == nil {
		return SystemClock{}
	}
	return m.deps.Clock
}
