package submit

import (
	"github.com/snsgroups/proctor-backend/internal/grading"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// NotAttended is the sentinel for unanswered questions in sectioned mode.
const NotAttended = "notattended"

// Payload is the grading-endpoint submit body. Answers are keyed by the
// question's text content rather than its index, so grading stays robust to
// question reordering between fetch and submit. Field casing follows the
// grading endpoint's contract.
type Payload struct {
	ContestID string      `json:"contestId"`
	StudentID string      `json:"studentId,omitempty"`
	Answers   interface{} `json:"answers"`

	// Warnings is the summed tally, sent in flat mode only.
	Warnings int `json:"warnings,omitempty"`

	FullscreenWarning int `json:"FullscreenWarning"`
	NoiseWarning      int `json:"NoiseWarning"`
	FaceWarning       int `json:"FaceWarning"`
	TabSwitchWarning  int `json:"TabSwitchWarning"`

	// Sectioned mode only.
	IsPublish      *bool    `json:"isPublish,omitempty"`
	Grade          string   `json:"grade,omitempty"`
	PassPercentage *float64 `json:"passPercentage,omitempty"`
}

// Build assembles the submit payload for an attempt. The attempt is read
// but never mutated; callers hold whatever lock guards it.
func Build(paper *model.ExamPaper, attempt *model.ExamAttempt) Payload {
	p := Payload{
		ContestID:         attempt.ContestID,
		FullscreenWarning: attempt.Violations.FullscreenExits,
		NoiseWarning:      attempt.Violations.NoiseEvents,
		FaceWarning:       attempt.Violations.FaceAbsentEvents,
		TabSwitchWarning:  attempt.Violations.TabSwitches,
	}

	if paper.Mode == model.ModeSectioned {
		answers := make(map[string]map[string]string, len(paper.Sections))
		for si, section := range paper.Sections {
			bucket := make(map[string]string, len(section.Questions))
			for qi, q := range section.Questions {
				if a := attempt.Answer(si, qi); a != "" {
					bucket[q.Text] = a
				} else {
					bucket[q.Text] = NotAttended
				}
			}
			answers[section.Name] = bucket
		}
		p.Answers = answers
		p.StudentID = attempt.StudentID

		res := grading.Grade(paper, attempt, attempt.PassPercentage)
		p.Grade = res.Grade
		publish := attempt.Publish
		pass := attempt.PassPercentage
		p.IsPublish = &publish
		p.PassPercentage = &pass
		return p
	}

	answers := make(map[string]string, len(paper.Questions))
	for qi, q := range paper.Questions {
		if a := attempt.Answer(0, qi); a != "" {
			answers[q.Text] = a
		}
	}
	p.Answers = answers
	p.Warnings = attempt.Violations.Total()
	return p
}
