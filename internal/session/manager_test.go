package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned papers and counts fetches.
type fakeFetcher struct {
	flat      *model.ExamPaper
	sectioned *model.ExamPaper
	err       error
	calls     int
}

func (f *fakeFetcher) FlatPaper(_ context.Context, _ string) (*model.ExamPaper, error) {
	f.calls++
	return f.flat, f.err
}

func (f *fakeFetcher) SectionedPaper(_ context.Context, _ string) (*model.ExamPaper, error) {
	f.calls++
	return f.sectioned, f.err
}

func newManagerFixture(t *testing.T) (*Manager, *fakeFetcher, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := newFakeClock(time.Now())
	fetcher := &fakeFetcher{flat: flatPaper(), sectioned: sectionedPaper()}
	mgr := NewManager(Deps{
		Store:     st,
		Submitter: &fakeSubmitter{},
		Recorder:  &fakeRecorder{},
		Clock:     clock,
		Logger:    zerolog.Nop(),
		Monitor: proctor.Config{
			DebounceWindow: 100 * time.Millisecond,
			VisibilityGate: 500 * time.Millisecond,
			Limits:         model.ViolationLimits{Fullscreen: 3, TabSwitch: 1, Noise: 2, FaceAbsent: 3},
		},
		FreezeWindow: 5 * time.Second,
	}, fetcher)
	return mgr, fetcher, st, clock
}

func TestManagerStartCreatesAndRegisters(t *testing.T) {
	mgr, _, st, _ := newManagerFixture(t)

	engine, resumed, err := mgr.Start(context.Background(), "contest-1", "student-1", StartOptions{
		Mode:           model.ModeFlat,
		PassPercentage: 60,
	})
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, 600, engine.State().TotalRemainingSeconds)
	assert.Equal(t, 1, mgr.Len())
	assert.Equal(t, 1, st.Len())

	got, ok := mgr.Get("contest-1", "student-1")
	require.True(t, ok)
	assert.Same(t, engine, got)
}

func TestManagerStartIsIdempotent(t *testing.T) {
	mgr, fetcher, _, _ := newManagerFixture(t)
	ctx := context.Background()

	first, _, err := mgr.Start(ctx, "contest-1", "student-1", StartOptions{Mode: model.ModeFlat})
	require.NoError(t, err)

	second, resumed, err := mgr.Start(ctx, "contest-1", "student-1", StartOptions{Mode: model.ModeFlat})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fetcher.calls, "the paper is fetched once per live engine")
}

func TestManagerStartResumesPersistedAttempt(t *testing.T) {
	mgr, _, st, clock := newManagerFixture(t)
	ctx := context.Background()

	// A crashed node left the record behind, 100 seconds into the exam.
	paper := flatPaper()
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now().Add(-100*time.Second))
	attempt.Answers[0][0] = "a"
	require.NoError(t, st.Save(ctx, attempt))

	engine, resumed, err := mgr.Start(ctx, "contest-1", "student-1", StartOptions{Mode: model.ModeFlat})
	require.NoError(t, err)
	assert.True(t, resumed)

	state := engine.State()
	assert.Equal(t, 500, state.TotalRemainingSeconds)
	assert.Equal(t, "a", state.Answers[0][0], "ledger survives the resume")
}

func TestManagerStartResumeKeepsPersistedOptions(t *testing.T) {
	mgr, _, st, clock := newManagerFixture(t)
	ctx := context.Background()

	paper := flatPaper()
	attempt := model.NewExamAttempt(paper, "student-1", clock.Now().Add(-10*time.Second))
	attempt.FullscreenRequired = true
	attempt.PassPercentage = 60
	require.NoError(t, st.Save(ctx, attempt))

	// The resume request carries weaker options; the record wins.
	engine, resumed, err := mgr.Start(ctx, "contest-1", "student-1", StartOptions{
		Mode:           model.ModeFlat,
		PassPercentage: 5,
	})
	require.NoError(t, err)
	require.True(t, resumed)
	assert.True(t, engine.State().FullscreenRequired)

	stored, err := st.Load(ctx, "contest-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, float64(60), stored.PassPercentage)
	assert.True(t, stored.FullscreenRequired)
}

func TestManagerStartFetchFailure(t *testing.T) {
	mgr, fetcher, _, _ := newManagerFixture(t)
	fetcher.err = errors.New("upstream down")
	fetcher.flat = nil

	_, _, err := mgr.Start(context.Background(), "contest-1", "student-1", StartOptions{Mode: model.ModeFlat})
	require.Error(t, err)
	assert.Equal(t, 0, mgr.Len())
}

func TestManagerFinishedEngineLeavesRegistry(t *testing.T) {
	mgr, _, _, _ := newManagerFixture(t)
	ctx := context.Background()

	engine, _, err := mgr.Start(ctx, "contest-1", "student-1", StartOptions{Mode: model.ModeFlat})
	require.NoError(t, err)

	require.NoError(t, engine.Finish(ctx, TriggerUser))
	assert.Equal(t, 0, mgr.Len())
	_, ok := mgr.Get("contest-1", "student-1")
	assert.False(t, ok)
}

func TestManagerSectionedMode(t *testing.T) {
	mgr, _, _, _ := newManagerFixture(t)

	engine, _, err := mgr.Start(context.Background(), "contest-2", "student-2", StartOptions{
		Mode:           model.ModeSectioned,
		PassPercentage: 60,
		Publish:        true,
	})
	require.NoError(t, err)

	state := engine.State()
	assert.Equal(t, model.ModeSectioned, state.Mode)
	assert.Equal(t, []int{60, 120}, state.SectionRemainingSeconds)
	assert.Equal(t, 180, state.TotalRemainingSeconds)
}
