package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/store"
	"github.com/snsgroups/proctor-backend/internal/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSubmitter records payloads and fails on demand.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []submit.Payload
	err      error
	entered  chan struct{}
	block    chan struct{}
}

func (s *fakeSubmitter) Submit(_ context.Context, p submit.Payload) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *fakeSubmitter) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// fakeNotifier records shell-bound events.
type fakeNotifier struct {
	mu           sync.Mutex
	warnings     []model.ViolationKind
	finished     []string
	submitFailed []string
	enforced     int
}

func (n *fakeNotifier) Warn(kind model.ViolationKind, _ int, _ bool) {
	n.mu.Lock()
	n.warnings = append(n.warnings, kind)
	n.mu.Unlock()
}
func (n *fakeNotifier) EnforceFullscreen() {
	n.mu.Lock()
	n.enforced++
	n.mu.Unlock()
}
func (n *fakeNotifier) FocusState(bool) {}
func (n *fakeNotifier) Finished(redirect string) {
	n.mu.Lock()
	n.finished = append(n.finished, redirect)
	n.mu.Unlock()
}
func (n *fakeNotifier) SubmitFailed(msg string) {
	n.mu.Lock()
	n.submitFailed = append(n.submitFailed, msg)
	n.mu.Unlock()
}

// fakeRecorder counts recorded events and reports.
type fakeRecorder struct {
	mu      sync.Mutex
	events  []model.ViolationEvent
	reports []model.AttemptReport
}

func (r *fakeRecorder) RecordViolation(_ context.Context, e model.ViolationEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordReport(_ context.Context, rep model.AttemptReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func flatPaper() *model.ExamPaper {
	return &model.ExamPaper{
		ContestID: "contest-1",
		Mode:      model.ModeFlat,
		Duration:  model.Duration{Hours: "0", Minutes: "10"},
		Questions: []model.Question{
			{Text: "Q1", Options: []string{"a", "b"}, CorrectAnswer: "a"},
			{Text: "Q2", Options: []string{"a", "b"}, CorrectAnswer: "b"},
			{Text: "Q3", Options: []string{"a", "b"}, CorrectAnswer: "a"},
		},
	}
}

func sectionedPaper() *model.ExamPaper {
	return &model.ExamPaper{
		ContestID: "contest-2",
		Mode:      model.ModeSectioned,
		Sections: []model.Section{
			{
				Name:     "Aptitude",
				Duration: model.Duration{Minutes: "1"},
				Questions: []model.Question{
					{Text: "A1", Options: []string{"x", "y"}, CorrectAnswer: "x"},
					{Text: "A2", Options: []string{"x", "y"}, CorrectAnswer: "y"},
				},
			},
			{
				Name:     "Coding",
				Duration: model.Duration{Minutes: "2"},
				Questions: []model.Question{
					{Text: "C1", Options: []string{"x", "y"}, CorrectAnswer: "x"},
				},
			},
		},
	}
}

type engineFixture struct {
	engine    *Engine
	store     *store.MemoryStore
	clock     *fakeClock
	submitter *fakeSubmitter
	notifier  *fakeNotifier
	recorder  *fakeRecorder
}

func newEngineFixture(t *testing.T, paper *model.ExamPaper, attempt *model.ExamAttempt, clock *fakeClock) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:     store.NewMemoryStore(),
		clock:     clock,
		submitter: &fakeSubmitter{},
		notifier:  &fakeNotifier{},
		recorder:  &fakeRecorder{},
	}
	f.engine = NewEngine(Deps{
		Store:     f.store,
		Submitter: f.submitter,
		Recorder:  f.recorder,
		Clock:     clock,
		Logger:    zerolog.Nop(),
		Monitor: proctor.Config{
			DebounceWindow: 100 * time.Millisecond,
			VisibilityGate: 500 * time.Millisecond,
			Limits:         model.ViolationLimits{Fullscreen: 3, TabSwitch: 1, Noise: 2, FaceAbsent: 3},
		},
		FreezeWindow: 5 * time.Second,
	}, paper, attempt)
	f.engine.SetNotifier(f.notifier)
	return f
}

func TestEngineStartFreshAttempt(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)

	require.NoError(t, f.engine.Start(context.Background()))

	state := f.engine.State()
	assert.Equal(t, 600, state.TotalRemainingSeconds)
	assert.Equal(t, PhaseRunning, state.Phase)

	// The reconciled record is persisted immediately.
	stored, err := f.store.Load(context.Background(), "contest-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 600, stored.TotalRemainingSeconds)
}

func TestEngineResumeRecomputesFromAnchor(t *testing.T) {
	paper := flatPaper()
	started := time.Now()
	clock := newFakeClock(started.Add(100 * time.Second))

	// Simulate a reload: the stored record claims more time than the anchor
	// allows. The anchor wins.
	attempt := model.NewExamAttempt(paper, "student-1", started)
	attempt.TotalRemainingSeconds = 600
	f := newEngineFixture(t, paper, attempt, clock)

	require.NoError(t, f.engine.Start(context.Background()))
	assert.Equal(t, 500, f.engine.State().TotalRemainingSeconds)
}

func TestEngineResumeClampsToZero(t *testing.T) {
	paper := flatPaper()
	started := time.Now()
	clock := newFakeClock(started.Add(2 * time.Hour))

	attempt := model.NewExamAttempt(paper, "student-1", started)
	f := newEngineFixture(t, paper, attempt, clock)

	require.NoError(t, f.engine.Start(context.Background()))
	assert.Equal(t, 0, f.engine.State().TotalRemainingSeconds)
}

func TestEngineTickDecrementsAndPersists(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		f.engine.Tick(context.Background())
	}

	assert.Equal(t, 597, f.engine.State().TotalRemainingSeconds)
	stored, err := f.store.Load(context.Background(), "contest-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 597, stored.TotalRemainingSeconds)
}

func TestEngineFreezeWindowDefersExpiryFinish(t *testing.T) {
	paper := flatPaper()
	started := time.Now()
	clock := newFakeClock(started.Add(2 * time.Hour)) // Already out of time.
	attempt := model.NewExamAttempt(paper, "student-1", started)
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	// Inside the freeze window the zero clock is treated as possibly stale.
	clock.Advance(time.Second)
	f.engine.Tick(context.Background())
	assert.Equal(t, 0, f.submitter.count())
	assert.Equal(t, PhaseExpired, f.engine.State().Phase)
	assert.False(t, f.engine.Finished())

	// Past the freeze window the expiry submits.
	clock.Advance(10 * time.Second)
	f.engine.Tick(context.Background())
	assert.Equal(t, 1, f.submitter.count())
	assert.True(t, f.engine.Finished())
}

func TestEngineSectionClockAdvancesWithoutFinishing(t *testing.T) {
	paper := sectionedPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-2", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	// Drain the first section's 60 seconds.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		f.engine.Tick(context.Background())
	}

	state := f.engine.State()
	assert.Equal(t, 0, state.SectionRemainingSeconds[0])
	assert.Equal(t, 1, state.CurrentSection, "drained section moves the cursor forward")
	assert.Equal(t, 0, state.CurrentQuestion)
	assert.False(t, f.engine.Finished(), "a drained section clock never ends the attempt")
	assert.Equal(t, 120, state.TotalRemainingSeconds)
}

func TestEngineCursorRejectsDrainedSection(t *testing.T) {
	paper := sectionedPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-2", clock.Now())
	attempt.SectionRemainingSeconds[0] = 0
	attempt.CurrentSection = 1
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	err := f.engine.SetCursor(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, f.engine.SetCursor(context.Background(), 1, 0))
	assert.Equal(t, 1, f.engine.State().CurrentSection)
}

func TestEngineLedgerRoundTrip(t *testing.T) {
	paper := sectionedPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-2", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, f.engine.SelectAnswer(ctx, 0, 1, "y"))
	require.NoError(t, f.engine.SelectAnswer(ctx, 1, 0, "x"))

	flagged, err := f.engine.ToggleReview(ctx, 0, 1)
	require.NoError(t, err)
	assert.True(t, flagged)
	flagged, err = f.engine.ToggleReview(ctx, 0, 1)
	require.NoError(t, err)
	assert.False(t, flagged)

	assert.ErrorIs(t, f.engine.SelectAnswer(ctx, 0, 9, "y"), ErrOutOfRange)
	assert.ErrorIs(t, f.engine.SelectAnswer(ctx, 5, 0, "y"), ErrOutOfRange)

	// Every mutation is persisted; a reloaded record carries the ledger.
	stored, err := f.store.Load(ctx, "contest-2", "student-2")
	require.NoError(t, err)
	assert.Equal(t, "y", stored.Answers[0][1])
	assert.Equal(t, "x", stored.Answers[1][0])
	assert.False(t, stored.ReviewFlags[0][1])
}

func TestEngineFinishSubmitsOnceAndClears(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, f.engine.SelectAnswer(ctx, 0, 0, "a"))

	require.NoError(t, f.engine.Finish(ctx, TriggerUser))
	assert.True(t, f.engine.Finished())
	assert.Equal(t, 1, f.submitter.count())
	assert.Equal(t, 0, f.store.Len(), "store entry cleared with the submission")
	assert.Equal(t, []string{"/studentdashboard"}, f.notifier.finished)

	// The attempt is immutable afterwards.
	assert.ErrorIs(t, f.engine.Finish(ctx, TriggerUser), ErrFinished)
	assert.ErrorIs(t, f.engine.SelectAnswer(ctx, 0, 1, "b"), ErrFinished)

	// The finished report went to the recorder.
	require.Len(t, f.recorder.reports, 1)
	assert.Equal(t, string(TriggerUser), f.recorder.reports[0].Trigger)
}

func TestEngineFinishFailureLeavesAttemptOpen(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	ctx := context.Background()
	f.submitter.setErr(errors.New("gateway timeout"))

	err := f.engine.Finish(ctx, TriggerUser)
	require.Error(t, err)
	assert.False(t, f.engine.Finished())
	assert.Len(t, f.notifier.submitFailed, 1)
	assert.Equal(t, 1, f.store.Len(), "record survives a failed submission")

	// A retry after recovery succeeds.
	f.submitter.setErr(nil)
	require.NoError(t, f.engine.Finish(ctx, TriggerUser))
	assert.True(t, f.engine.Finished())
}

func TestEngineConcurrentFinishSingleSubmission(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	f.submitter.entered = make(chan struct{}, 1)
	f.submitter.block = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() { firstDone <- f.engine.Finish(context.Background(), TriggerUser) }()

	// Wait until the first finish holds the in-flight flag, then any
	// overlapping trigger is rejected.
	<-f.submitter.entered
	assert.ErrorIs(t, f.engine.Finish(context.Background(), TriggerExpiry), ErrSubmitInFlight)

	close(f.submitter.block)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 1, f.submitter.count())
}

func TestEngineTickPersistsWhileLedgerMutates(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	// The ticker serializes its snapshot outside the engine lock, so it must
	// not share map storage with the ledger the handlers keep writing. Run
	// under the race detector to verify.
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.engine.Tick(ctx)
		}
	}()
	for i := 0; i < 200; i++ {
		require.NoError(t, f.engine.SelectAnswer(ctx, 0, i%3, "a"))
	}
	<-done

	stored, err := f.store.Load(ctx, "contest-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Answers[0][0])
	assert.False(t, f.engine.Finished())
}

func TestEngineResumeFullscreenAfterReconnect(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())

	resumedAttempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	resumedAttempt.FullscreenRequired = true
	resumedAttempt.FullscreenActive = true
	f := newEngineFixture(t, paper, resumedAttempt, clock)
	assert.True(t, f.engine.ResumeFullscreen())

	fresh := model.NewExamAttempt(paper, "student-1", clock.Now())
	fresh.FullscreenRequired = true
	g := newEngineFixture(t, paper, fresh, clock)
	assert.False(t, g.engine.ResumeFullscreen(), "a first connect waits for the shell's own entry gesture")

	unrestricted := model.NewExamAttempt(paper, "student-1", clock.Now())
	unrestricted.FullscreenActive = true
	h := newEngineFixture(t, paper, unrestricted, clock)
	assert.False(t, h.engine.ResumeFullscreen())
}

func TestEngineViolationsFlowThroughSignals(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	attempt.FullscreenRequired = true
	attempt.FullscreenActive = true
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	relay := proctor.NewRelay()
	f.engine.AttachSource(relay)

	relay.Emit(proctor.Signal{Kind: proctor.SignalFullscreenChange, At: clock.Now(), Active: false})
	relay.Emit(proctor.Signal{Kind: proctor.SignalNoise, At: clock.Now().Add(time.Second)})

	state := f.engine.State()
	assert.Equal(t, 1, state.Violations.FullscreenExits)
	assert.Equal(t, 1, state.Violations.NoiseEvents)
	assert.False(t, state.FullscreenActive)

	// Counters are persisted and audited, and the shell was warned.
	stored, err := f.store.Load(context.Background(), "contest-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Violations.FullscreenExits)
	assert.Len(t, f.recorder.events, 2)
	assert.Equal(t, []model.ViolationKind{model.ViolationFullscreen, model.ViolationNoise}, f.notifier.warnings)
	assert.Equal(t, 1, f.notifier.enforced)
}

func TestEngineThresholdForcedFinish(t *testing.T) {
	paper := flatPaper()
	clock := newFakeClock(time.Now())
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now())
	attempt.FullscreenRequired = true
	attempt.FullscreenActive = true
	// Everything but face absence already at its limit.
	attempt.Violations = model.ViolationCounts{FullscreenExits: 3, TabSwitches: 1, NoiseEvents: 2, FaceAbsentEvents: 2}
	f := newEngineFixture(t, paper, attempt, clock)
	require.NoError(t, f.engine.Start(context.Background()))

	relay := proctor.NewRelay()
	f.engine.AttachSource(relay)

	relay.Emit(proctor.Signal{Kind: proctor.SignalFacePresence, At: clock.Now(), Detected: false})

	assert.True(t, f.engine.Finished())
	require.Equal(t, 1, f.submitter.count())
	require.Len(t, f.recorder.reports, 1)
	assert.Equal(t, string(TriggerThreshold), f.recorder.reports[0].Trigger)
}
