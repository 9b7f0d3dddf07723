package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/response"
	"github.com/snsgroups/proctor-backend/internal/session"
	"github.com/snsgroups/proctor-backend/internal/validator"
)

// AttemptHandler exposes the attempt lifecycle over REST: start/resume,
// state polling, the answer/review/cursor ledger, and user-triggered finish.
type AttemptHandler struct {
	manager *session.Manager
	log     zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(manager *session.Manager, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		manager: manager,
		log:     log.With().Str("component", "attempt_handler").Logger(),
	}
}

// ─── Request bodies ─────────────────────────────────────────────────

type startRequest struct {
	StudentID          string  `json:"student_id" binding:"required"`
	Mode               string  `json:"mode" binding:"required,oneof=flat sectioned"`
	FullscreenRequired bool    `json:"fullscreen_required"`
	PassPercentage     float64 `json:"pass_percentage" binding:"gte=0,lte=100"`
	Publish            bool    `json:"publish"`
}

type ledgerRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Section   int    `json:"section" binding:"gte=0"`
	Question  int    `json:"question" binding:"gte=0"`
	Answer    string `json:"answer"`
}

type finishRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// ─── Paper DTO ──────────────────────────────────────────────────────

// Correct answers never leave the server; the shell gets text and options
// only.
type questionDTO struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type sectionDTO struct {
	Name            string        `json:"sectionName"`
	Questions       []questionDTO `json:"questions"`
	DurationSeconds int           `json:"duration_seconds"`
}

type paperDTO struct {
	ContestID       string        `json:"contest_id"`
	Mode            string        `json:"mode"`
	Questions       []questionDTO `json:"questions,omitempty"`
	Sections        []sectionDTO  `json:"sections,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
}

func stripQuestions(qs []model.Question) []questionDTO {
	out := make([]questionDTO, len(qs))
	for i, q := range qs {
		out[i] = questionDTO{Text: q.Text, Options: q.Options}
	}
	return out
}

func buildPaperDTO(p *model.ExamPaper) paperDTO {
	dto := paperDTO{
		ContestID:       p.ContestID,
		Mode:            string(p.Mode),
		DurationSeconds: p.TotalDurationSeconds(),
	}
	if p.Mode == model.ModeSectioned {
		dto.Sections = make([]sectionDTO, len(p.Sections))
		for i, s := range p.Sections {
			dto.Sections[i] = sectionDTO{
				Name:            s.Name,
				Questions:       stripQuestions(s.Questions),
				DurationSeconds: s.Duration.Seconds(),
			}
		}
		return dto
	}
	dto.Questions = stripQuestions(p.Questions)
	return dto
}

// ─── Handlers ───────────────────────────────────────────────────────

// Start godoc
// POST /api/v1/attempts/:contest_id/start
// Starts a fresh attempt or resumes the persisted one for this pair.
func (h *AttemptHandler) Start(c *gin.Context) {
	contestID := c.Param("contest_id")
	if contestID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req startRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	engine, resumed, err := h.manager.Start(c.Request.Context(), contestID, req.StudentID, session.StartOptions{
		Mode:               model.AttemptMode(req.Mode),
		FullscreenRequired: req.FullscreenRequired,
		PassPercentage:     req.PassPercentage,
		Publish:            req.Publish,
	})
	if err != nil {
		h.log.Error().Err(err).Str("contest_id", contestID).Msg("Attempt start failed")
		response.Fail(c, http.StatusBadGateway, response.ErrPaperUnavailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"resumed": resumed,
		"paper":   buildPaperDTO(engine.Paper()),
		"state":   engine.State(),
	})
}

// State godoc
// GET /api/v1/attempts/:contest_id/state?student_id=...
func (h *AttemptHandler) State(c *gin.Context) {
	engine, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, engine.State())
}

// Answer godoc
// POST /api/v1/attempts/:contest_id/answer
func (h *AttemptHandler) Answer(c *gin.Context) {
	var req ledgerRequest
	engine, ok := h.bindLedger(c, &req)
	if !ok {
		return
	}
	if req.Answer == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"answer": "answer is required"})
		return
	}
	if err := engine.SelectAnswer(c.Request.Context(), req.Section, req.Question, req.Answer); err != nil {
		h.failEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Review godoc
// POST /api/v1/attempts/:contest_id/review
// Toggles the mark-for-review flag and returns the new value.
func (h *AttemptHandler) Review(c *gin.Context) {
	var req ledgerRequest
	engine, ok := h.bindLedger(c, &req)
	if !ok {
		return
	}
	flagged, err := engine.ToggleReview(c.Request.Context(), req.Section, req.Question)
	if err != nil {
		h.failEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"flagged": flagged})
}

// Cursor godoc
// POST /api/v1/attempts/:contest_id/cursor
func (h *AttemptHandler) Cursor(c *gin.Context) {
	var req ledgerRequest
	engine, ok := h.bindLedger(c, &req)
	if !ok {
		return
	}
	if err := engine.SetCursor(c.Request.Context(), req.Section, req.Question); err != nil {
		h.failEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "moved"})
}

// Finish godoc
// POST /api/v1/attempts/:contest_id/finish
// Submits the attempt. A failed submission leaves the attempt open for a
// retry; overlapping finishes are rejected.
func (h *AttemptHandler) Finish(c *gin.Context) {
	contestID := c.Param("contest_id")
	var req finishRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	engine, ok := h.manager.Get(contestID, req.StudentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}

	if err := engine.Finish(c.Request.Context(), session.TriggerUser); err != nil {
		switch {
		case errors.Is(err, session.ErrFinished):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		case errors.Is(err, session.ErrSubmitInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "submitted"})
}

// ─── Internal helpers ───────────────────────────────────────────────

func (h *AttemptHandler) lookup(c *gin.Context) (*session.Engine, bool) {
	contestID := c.Param("contest_id")
	studentID := c.Query("student_id")
	if contestID == "" || studentID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}
	engine, ok := h.manager.Get(contestID, studentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}
	return engine, true
}

func (h *AttemptHandler) bindLedger(c *gin.Context, req *ledgerRequest) (*session.Engine, bool) {
	if fields := validator.Bind(c, req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return nil, false
	}
	engine, ok := h.manager.Get(c.Param("contest_id"), req.StudentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}
	return engine, true
}

func (h *AttemptHandler) failEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, session.ErrOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrOutOfRange)
	default:
		h.log.Error().Err(err).Msg("Ledger operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
