// Package session runs the per-attempt proctoring engine: countdown clocks,
// the answer/review ledger, violation bookkeeping, and the one-shot finish
// pipeline. One Engine exists per live attempt; the Manager owns the set.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/grading"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/store"
	"github.com/snsgroups/proctor-backend/internal/submit"
)

// Trigger records what initiated a finish.
type Trigger string

const (
	TriggerUser      Trigger = "user"
	TriggerExpiry    Trigger = "expiry"
	TriggerThreshold Trigger = "threshold"
)

// Phase is the engine lifecycle state.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseRunning Phase = "running"
	// PhaseExpired means the total clock reached zero but the submission
	// has not completed yet (freeze window, or a failed submit awaiting
	// retry on the next tick).
	PhaseExpired Phase = "expired"
)

var (
	// ErrFinished is returned by every mutating operation once the attempt
	// has been submitted.
	ErrFinished = errors.New("attempt already finished")
	// ErrSubmitInFlight is returned when a finish overlaps one in progress.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrOutOfRange is returned for a section or question index outside the
	// paper.
	ErrOutOfRange = errors.New("section or question out of range")
)

// EventRecorder receives violation events and finished-attempt reports for
// asynchronous persistence. Implementations must not block the caller beyond
// a queue push.
type EventRecorder interface {
	RecordViolation(ctx context.Context, event model.ViolationEvent)
	RecordReport(ctx context.Context, report model.AttemptReport)
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store     store.AttemptStore
	Submitter submit.Submitter
	Recorder  EventRecorder
	Clock     Clock
	Logger    zerolog.Logger

	Monitor proctor.Config
	// FreezeWindow suppresses expiry auto-finish right after start or
	// resume, while a reloaded shell may still be reporting a stale clock.
	FreezeWindow time.Duration
	// TickInterval drives the background countdown. Zero disables the
	// background ticker; callers then advance time through Tick.
	TickInterval time.Duration
	// RedirectPath is sent to the shell with the finished notification.
	RedirectPath string
}

// Engine owns one attempt's runtime state. All mutating entry points are
// safe for concurrent use; the HTTP handlers, the WebSocket read loop and
// the ticker goroutine all call in.
type Engine struct {
	deps     Deps
	paper    *model.ExamPaper
	enforcer *proctor.Enforcer
	monitor  *proctor.Monitor
	log      zerolog.Logger

	mu         sync.Mutex
	attempt    *model.ExamAttempt
	notifier   Notifier
	phase      Phase
	submitting bool
	startedRun time.Time
	cancelTick context.CancelFunc

	// onFinished lets the Manager drop the engine from its registry.
	onFinished func()
}

// NewEngine builds an engine around an attempt, fresh or resumed. The
// attempt's clocks are reconciled in Start, not here.
func NewEngine(deps Deps, paper *model.ExamPaper, attempt *model.ExamAttempt) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.RedirectPath == "" {
		deps.RedirectPath = "/studentdashboard"
	}
	e := &Engine{
		deps:     deps,
		paper:    paper,
		attempt:  attempt,
		notifier: noopNotifier{},
		phase:    PhasePending,
		enforcer: proctor.NewEnforcer(attempt.FullscreenRequired, attempt.FullscreenActive),
		log: deps.Logger.With().
			Str("component", "attempt_engine").
			Str("contest_id", attempt.ContestID).
			Str("student_id", attempt.StudentID).
			Logger(),
	}
	e.monitor = proctor.NewMonitor(deps.Monitor, e.enforcer, proctor.Hooks{
		Violation:       e.recordViolation,
		Enforce:         e.enforce,
		Focus:           e.focusChanged,
		FullscreenState: e.fullscreenChanged,
		ForceFinish:     e.forceFinish,
	}, deps.Clock.Now, deps.Logger)
	return e
}

// Start reconciles the clocks against the persisted start anchor, persists
// the reconciled record, and begins ticking. The anchor, not any stored
// countdown value, is authoritative for total remaining time: a reload
// cannot reset the clock.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.attempt.Finished {
		e.mu.Unlock()
		return ErrFinished
	}

	now := e.deps.Clock.Now()
	elapsed := int(now.Sub(e.attempt.StartedAt).Seconds())
	remaining := e.paper.TotalDurationSeconds() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	e.attempt.TotalRemainingSeconds = remaining
	e.phase = PhaseRunning
	e.startedRun = now
	snapshot := e.attempt.Clone()
	e.mu.Unlock()

	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("persisting attempt at start: %w", err)
	}

	if e.deps.TickInterval > 0 {
		tickCtx, cancel := context.WithCancel(context.Background())
		e.mu.Lock()
		e.cancelTick = cancel
		e.mu.Unlock()
		go e.run(tickCtx)
	}

	e.log.Info().
		Str("mode", string(e.attempt.Mode)).
		Int("remaining_seconds", remaining).
		Msg("Attempt engine started")
	return nil
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.deps.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick advances the countdown by one second and persists the attempt. When
// the total clock is exhausted past the freeze window, it finishes the
// attempt with the expiry trigger.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if e.attempt.Finished || e.phase == PhasePending {
		e.mu.Unlock()
		return
	}

	a := e.attempt
	if a.TotalRemainingSeconds > 0 {
		a.TotalRemainingSeconds--
	}
	if a.Mode == model.ModeSectioned {
		cur := a.CurrentSection
		if cur >= 0 && cur < len(a.SectionRemainingSeconds) {
			if a.SectionRemainingSeconds[cur] > 0 {
				a.SectionRemainingSeconds[cur]--
			}
			// A drained section clock moves the student forward; it never
			// ends the attempt on its own.
			if a.SectionRemainingSeconds[cur] == 0 {
				if next := e.nextOpenSection(cur); next != cur {
					a.CurrentSection = next
					a.CurrentQuestion = 0
				}
			}
		}
	}

	expired := a.TotalRemainingSeconds <= 0
	if expired {
		e.phase = PhaseExpired
	}
	frozen := e.deps.Clock.Now().Sub(e.startedRun) < e.deps.FreezeWindow
	snapshot := a.Clone()
	e.mu.Unlock()

	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist attempt tick")
	}

	if expired && !frozen {
		if err := e.Finish(ctx, TriggerExpiry); err != nil &&
			!errors.Is(err, ErrFinished) && !errors.Is(err, ErrSubmitInFlight) {
			e.log.Error().Err(err).Msg("Expiry submission failed, will retry next tick")
		}
	}
}

// nextOpenSection returns the first section after cur with time left, or cur
// when none remains.
func (e *Engine) nextOpenSection(cur int) int {
	for i := cur + 1; i < len(e.attempt.SectionRemainingSeconds); i++ {
		if e.attempt.SectionRemainingSeconds[i] > 0 {
			return i
		}
	}
	return cur
}

// SelectAnswer records the student's choice for a question.
func (e *Engine) SelectAnswer(ctx context.Context, section, question int, answer string) error {
	return e.mutate(ctx, section, question, func(a *model.ExamAttempt) {
		a.Answers[section][question] = answer
	})
}

// ToggleReview flips the mark-for-review flag and returns the new value.
func (e *Engine) ToggleReview(ctx context.Context, section, question int) (bool, error) {
	var flagged bool
	err := e.mutate(ctx, section, question, func(a *model.ExamAttempt) {
		flagged = !a.ReviewFlags[section][question]
		if flagged {
			a.ReviewFlags[section][question] = true
		} else {
			delete(a.ReviewFlags[section], question)
		}
	})
	return flagged, err
}

// SetCursor moves the student's position. In sectioned mode the target
// section must still have time on its clock.
func (e *Engine) SetCursor(ctx context.Context, section, question int) error {
	e.mu.Lock()
	if e.attempt.Finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if section < 0 || section >= e.paper.SectionCount() ||
		question < 0 || question >= e.paper.QuestionCount(section) {
		e.mu.Unlock()
		return ErrOutOfRange
	}
	if e.attempt.Mode == model.ModeSectioned &&
		section < len(e.attempt.SectionRemainingSeconds) &&
		e.attempt.SectionRemainingSeconds[section] <= 0 {
		e.mu.Unlock()
		return ErrOutOfRange
	}
	e.attempt.CurrentSection = section
	e.attempt.CurrentQuestion = question
	snapshot := e.attempt.Clone()
	e.mu.Unlock()

	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist cursor move")
	}
	return nil
}

func (e *Engine) mutate(ctx context.Context, section, question int, fn func(*model.ExamAttempt)) error {
	e.mu.Lock()
	if e.attempt.Finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if section < 0 || section >= e.paper.SectionCount() ||
		question < 0 || question >= e.paper.QuestionCount(section) {
		e.mu.Unlock()
		return ErrOutOfRange
	}
	fn(e.attempt)
	snapshot := e.attempt.Clone()
	e.mu.Unlock()

	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist ledger mutation")
	}
	return nil
}

// Finish runs the one-shot submission pipeline. Exactly one submission can
// succeed; overlapping calls get ErrSubmitInFlight and a failed submission
// leaves the attempt open so any trigger can retry.
func (e *Engine) Finish(ctx context.Context, trigger Trigger) error {
	e.mu.Lock()
	if e.attempt.Finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if e.submitting {
		e.mu.Unlock()
		return ErrSubmitInFlight
	}
	e.submitting = true
	payload := submit.Build(e.paper, e.attempt)
	report := e.buildReport(trigger)
	notifier := e.notifier
	e.mu.Unlock()

	e.log.Info().Str("trigger", string(trigger)).Msg("Submitting attempt")
	if err := e.deps.Submitter.Submit(ctx, payload); err != nil {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
		e.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission failed")
		notifier.SubmitFailed(err.Error())
		return fmt.Errorf("submitting attempt: %w", err)
	}

	e.mu.Lock()
	e.attempt.Finished = true
	e.submitting = false
	cancel := e.cancelTick
	e.cancelTick = nil
	done := e.onFinished
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.monitor.Detach()

	if err := e.deps.Store.Clear(ctx, e.attempt.ContestID, e.attempt.StudentID); err != nil {
		e.log.Error().Err(err).Msg("Failed to clear finished attempt from store")
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordReport(ctx, report)
	}
	notifier.Finished(e.deps.RedirectPath)
	if done != nil {
		done()
	}
	e.log.Info().Str("trigger", string(trigger)).Msg("Attempt finished")
	return nil
}

// buildReport must be called with e.mu held.
func (e *Engine) buildReport(trigger Trigger) model.AttemptReport {
	res := grading.Grade(e.paper, e.attempt, e.attempt.PassPercentage)
	return model.AttemptReport{
		ContestID:      e.attempt.ContestID,
		StudentID:      e.attempt.StudentID,
		Grade:          res.Grade,
		Percentage:     res.Percentage,
		Violations:     e.attempt.Violations,
		Trigger:        string(trigger),
		StartedAt:      e.attempt.StartedAt,
		SubmittedAt:    e.deps.Clock.Now(),
		PassPercentage: e.attempt.PassPercentage,
	}
}

func (e *Engine) stopTicker() {
	e.mu.Lock()
	cancel := e.cancelTick
	e.cancelTick = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AttachSource subscribes the violation monitor to a shell signal source.
func (e *Engine) AttachSource(source proctor.Source) {
	e.monitor.Attach(source)
}

// DetachSource removes the monitor's subscriptions, typically when the
// shell's WebSocket drops. The clocks keep running.
func (e *Engine) DetachSource() {
	e.monitor.Detach()
}

// SetNotifier installs the live shell notifier. Passing nil restores the
// no-op default.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == nil {
		n = noopNotifier{}
	}
	e.notifier = n
}

// ResumeFullscreen reports whether a newly connected shell should be pushed
// straight into fullscreen: enforcement is mandated for the attempt and the
// persisted state says fullscreen was active before the connection dropped.
// A first connect returns false; entry waits for the shell's own gesture.
func (e *Engine) ResumeFullscreen() bool {
	return e.enforcer.Mandated() && e.enforcer.Active()
}

// Paper returns the immutable fetched paper.
func (e *Engine) Paper() *model.ExamPaper { return e.paper }

// Finished reports whether the attempt has been submitted.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempt.Finished
}

// Snapshot is a consistent copy of the attempt's runtime state for the
// state endpoint. Maps are copied; callers may retain it freely.
type Snapshot struct {
	ContestID               string                 `json:"contest_id"`
	StudentID               string                 `json:"student_id"`
	Mode                    model.AttemptMode      `json:"mode"`
	Phase                   Phase                  `json:"phase"`
	TotalRemainingSeconds   int                    `json:"total_remaining_seconds"`
	SectionRemainingSeconds []int                  `json:"section_remaining_seconds,omitempty"`
	CurrentSection          int                    `json:"current_section"`
	CurrentQuestion         int                    `json:"current_question"`
	Answers                 []map[int]string       `json:"answers"`
	ReviewFlags             []map[int]bool         `json:"review_flags"`
	Violations              model.ViolationCounts  `json:"violations"`
	FullscreenRequired      bool                   `json:"fullscreen_required"`
	FullscreenActive        bool                   `json:"fullscreen_active"`
	Finished                bool                   `json:"finished"`
}

// State returns a snapshot of the attempt.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	a := e.attempt.Clone()
	phase := e.phase
	e.mu.Unlock()

	return Snapshot{
		ContestID:               a.ContestID,
		StudentID:               a.StudentID,
		Mode:                    a.Mode,
		Phase:                   phase,
		TotalRemainingSeconds:   a.TotalRemainingSeconds,
		SectionRemainingSeconds: a.SectionRemainingSeconds,
		CurrentSection:          a.CurrentSection,
		CurrentQuestion:         a.CurrentQuestion,
		Answers:                 a.Answers,
		ReviewFlags:             a.ReviewFlags,
		Violations:              a.Violations,
		FullscreenRequired:      a.FullscreenRequired,
		FullscreenActive:        a.FullscreenActive,
		Finished:                a.Finished,
	}
}

// recordViolation is the monitor's Violation hook.
func (e *Engine) recordViolation(kind model.ViolationKind, modal bool) model.ViolationCounts {
	e.mu.Lock()
	if e.attempt.Finished {
		counts := e.attempt.Violations
		e.mu.Unlock()
		return counts
	}
	count := e.attempt.Violations.Add(kind)
	counts := e.attempt.Violations
	snapshot := e.attempt.Clone()
	notifier := e.notifier
	e.mu.Unlock()

	ctx := context.Background()
	if err := e.deps.Store.Save(ctx, snapshot); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist violation")
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordViolation(ctx, model.ViolationEvent{
			ContestID:  e.attempt.ContestID,
			StudentID:  e.attempt.StudentID,
			Kind:       kind,
			Count:      count,
			OccurredAt: e.deps.Clock.Now(),
		})
	}
	notifier.Warn(kind, count, modal)
	return counts
}

func (e *Engine) enforce() {
	e.mu.Lock()
	notifier := e.notifier
	e.mu.Unlock()
	notifier.EnforceFullscreen()
}

func (e *Engine) focusChanged(has bool) {
	e.mu.Lock()
	notifier := e.notifier
	e.mu.Unlock()
	notifier.FocusState(has)
}

func (e *Engine) fullscreenChanged(active bool) {
	e.mu.Lock()
	e.attempt.FullscreenActive = active
	snapshot := e.attempt.Clone()
	e.mu.Unlock()
	if err := e.deps.Store.Save(context.Background(), snapshot); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist fullscreen state")
	}
}

func (e *Engine) forceFinish() {
	if err := e.Finish(context.Background(), TriggerThreshold); err != nil &&
		!errors.Is(err, ErrFinished) && !errors.Is(err, ErrSubmitInFlight) {
		e.log.Error().Err(err).Msg("Threshold-forced submission failed")
	}
}
