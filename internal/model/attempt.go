package model

import (
	"fmt"
	"time"
)

// ExamAttempt is the root aggregate for one student's run through one
// contest. It is the unit of persistence: the whole record is serialized to
// the session store on every mutation so a shell reload resumes from the
// last persisted tick instead of restarting.
type ExamAttempt struct {
	ContestID string      `json:"contest_id"`
	StudentID string      `json:"student_id"`
	Mode      AttemptMode `json:"mode"`

	// StartedAt is set once when the attempt is first created and never
	// overwritten. Remaining time after a reload is recomputed from this
	// anchor, which is what prevents timer-reset cheating.
	StartedAt time.Time `json:"started_at"`

	TotalRemainingSeconds   int   `json:"total_remaining_seconds"`
	SectionRemainingSeconds []int `json:"section_remaining_seconds,omitempty"`

	CurrentSection  int `json:"current_section"`
	CurrentQuestion int `json:"current_question"`

	// Answers and ReviewFlags are bucketed per section (flat mode uses a
	// single bucket at index 0), keyed by question index within the bucket.
	Answers     []map[int]string `json:"answers"`
	ReviewFlags []map[int]bool   `json:"review_flags"`

	Violations ViolationCounts `json:"violations"`

	FullscreenRequired bool `json:"fullscreen_required"`
	FullscreenActive   bool `json:"fullscreen_active"`

	PassPercentage float64 `json:"pass_percentage"`
	Publish        bool    `json:"publish"`

	// Finished flips false→true exactly once; afterwards the attempt is
	// immutable and its store entry has been cleared.
	Finished bool `json:"finished"`
}

// NewExamAttempt builds a fresh attempt for the given paper, with full
// clocks and empty ledgers.
func NewExamAttempt(paper *ExamPaper, studentID string, startedAt time.Time) *ExamAttempt {
	a := &ExamAttempt{
		ContestID:             paper.ContestID,
		StudentID:             studentID,
		Mode:                  paper.Mode,
		StartedAt:             startedAt,
		TotalRemainingSeconds: paper.TotalDurationSeconds(),
		Answers:               make([]map[int]string, paper.SectionCount()),
		ReviewFlags:           make([]map[int]bool, paper.SectionCount()),
	}
	for i := range a.Answers {
		a.Answers[i] = make(map[int]string)
		a.ReviewFlags[i] = make(map[int]bool)
	}
	if paper.Mode == ModeSectioned {
		a.SectionRemainingSeconds = paper.SectionDurations()
	}
	return a
}

// Clone returns a deep copy of the attempt. Snapshots handed to the store
// are serialized outside the engine lock, so they must not share map or
// slice storage with the live record.
func (a *ExamAttempt) Clone() *ExamAttempt {
	cp := *a
	cp.Answers = make([]map[int]string, len(a.Answers))
	for i, bucket := range a.Answers {
		m := make(map[int]string, len(bucket))
		for k, v := range bucket {
			m[k] = v
		}
		cp.Answers[i] = m
	}
	cp.ReviewFlags = make([]map[int]bool, len(a.ReviewFlags))
	for i, bucket := range a.ReviewFlags {
		m := make(map[int]bool, len(bucket))
		for k, v := range bucket {
			m[k] = v
		}
		cp.ReviewFlags[i] = m
	}
	if a.SectionRemainingSeconds != nil {
		cp.SectionRemainingSeconds = append([]int(nil), a.SectionRemainingSeconds...)
	}
	return &cp
}

// Key returns the store identity of the attempt.
func (a *ExamAttempt) Key() string {
	return AttemptKey(a.ContestID, a.StudentID)
}

// AttemptKey builds the canonical contest+student attempt identity.
func AttemptKey(contestID, studentID string) string {
	return fmt.Sprintf("%s:%s", contestID, studentID)
}

// Answer returns the selected answer for a question, or "" if unanswered.
func (a *ExamAttempt) Answer(section, question int) string {
	if section < 0 || section >= len(a.Answers) {
		return ""
	}
	return a.Answers[section][question]
}

// Reviewed reports the review flag for a question; absent means false.
func (a *ExamAttempt) Reviewed(section, question int) bool {
	if section < 0 || section >= len(a.ReviewFlags) {
		return false
	}
	return a.ReviewFlags[section][question]
}

// AttemptReport is the finished-attempt summary queued for persistence.
type AttemptReport struct {
	ContestID      string          `json:"contest_id"`
	StudentID      string          `json:"student_id"`
	Grade          string          `json:"grade,omitempty"`
	Percentage     float64         `json:"percentage"`
	Violations     ViolationCounts `json:"violations"`
	Trigger        string          `json:"trigger"`
	StartedAt      time.Time       `json:"started_at"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	PassPercentage float64         `json:"pass_percentage"`
}
