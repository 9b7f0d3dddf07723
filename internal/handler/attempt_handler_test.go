package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/session"
	"github.com/snsgroups/proctor-backend/internal/store"
	"github.com/snsgroups/proctor-backend/internal/submit"
	"github.com/snsgroups/proctor-backend/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type stubFetcher struct{ paper *model.ExamPaper }

func (s *stubFetcher) FlatPaper(context.Context, string) (*model.ExamPaper, error) {
	return s.paper, nil
}

func (s *stubFetcher) SectionedPaper(context.Context, string) (*model.ExamPaper, error) {
	return s.paper, nil
}

type stubSubmitter struct{ calls int }

func (s *stubSubmitter) Submit(context.Context, submit.Payload) error {
	s.calls++
	return nil
}

func testPaper() *model.ExamPaper {
	return &model.ExamPaper{
		ContestID: "contest-1",
		Mode:      model.ModeFlat,
		Duration:  model.Duration{Minutes: "10"},
		Questions: []model.Question{
			{Text: "Q1", Options: []string{"a", "b"}, CorrectAnswer: "a"},
			{Text: "Q2", Options: []string{"a", "b"}, CorrectAnswer: "b"},
		},
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *stubSubmitter) {
	t.Helper()
	submitter := &stubSubmitter{}
	manager := session.NewManager(session.Deps{
		Store:     store.NewMemoryStore(),
		Submitter: submitter,
		Logger:    zerolog.Nop(),
		Monitor: proctor.Config{
			DebounceWindow: 100 * time.Millisecond,
			VisibilityGate: 500 * time.Millisecond,
			Limits:         model.ViolationLimits{Fullscreen: 3, TabSwitch: 1, Noise: 2, FaceAbsent: 3},
		},
		FreezeWindow: 5 * time.Second,
	}, &stubFetcher{paper: testPaper()})

	h := NewAttemptHandler(manager, zerolog.Nop())
	r := gin.New()
	attempts := r.Group("/api/v1/attempts")
	{
		attempts.POST("/:contest_id/start", h.Start)
		attempts.GET("/:contest_id/state", h.State)
		attempts.POST("/:contest_id/answer", h.Answer)
		attempts.POST("/:contest_id/review", h.Review)
		attempts.POST("/:contest_id/cursor", h.Cursor)
		attempts.POST("/:contest_id/finish", h.Finish)
	}
	return r, submitter
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startAttempt(t *testing.T, r *gin.Engine) map[string]interface{} {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/start", gin.H{
		"student_id":      "student-1",
		"mode":            "flat",
		"pass_percentage": 60,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestStartReturnsPaperWithoutAnswers(t *testing.T) {
	r, _ := newTestRouter(t)
	data := startAttempt(t, r)

	assert.Equal(t, false, data["resumed"])

	raw, err := json.Marshal(data["paper"])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctAnswer", "answer key never reaches the shell")

	state := data["state"].(map[string]interface{})
	assert.Equal(t, float64(600), state["total_remaining_seconds"])
}

func TestStartValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/start", gin.H{
		"student_id": "student-1",
		"mode":       "triangular",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestStateUnknownAttemptIs404(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/attempts/contest-1/state?student_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ATTEMPT_NOT_FOUND")
}

func TestAnswerAndReviewFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	startAttempt(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/answer", gin.H{
		"student_id": "student-1", "section": 0, "question": 1, "answer": "b",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/review", gin.H{
		"student_id": "student-1", "section": 0, "question": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"flagged":true`)

	w = doJSON(t, r, http.MethodGet, "/api/v1/attempts/contest-1/state?student_id=student-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data session.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "b", envelope.Data.Answers[0][1])
	assert.True(t, envelope.Data.ReviewFlags[0][1])
}

func TestAnswerOutOfRange(t *testing.T) {
	r, _ := newTestRouter(t)
	startAttempt(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/answer", gin.H{
		"student_id": "student-1", "section": 0, "question": 9, "answer": "b",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "OUT_OF_RANGE")
}

func TestFinishSubmitsAndRetires(t *testing.T) {
	r, submitter := newTestRouter(t)
	startAttempt(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/finish", gin.H{
		"student_id": "student-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, submitter.calls)

	// The finished engine leaves the registry.
	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/contest-1/finish", gin.H{
		"student_id": "student-1",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
