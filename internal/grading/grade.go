// Package grading computes the local trust-but-verify grade attached to a
// sectioned submission. The grading endpoint is expected to recompute it.
package grading

import "github.com/snsgroups/proctor-backend/internal/model"

const (
	GradePass = "Pass"
	GradeFail = "Fail"
)

// Result is the locally computed outcome for one attempt.
type Result struct {
	Correct    int
	Total      int
	Percentage float64
	Grade      string
}

// Grade counts correct answers across every section of the paper and grades
// the percentage against passPercentage. An empty paper fails at 0%.
func Grade(paper *model.ExamPaper, attempt *model.ExamAttempt, passPercentage float64) Result {
	res := Result{Total: paper.TotalQuestions()}

	if paper.Mode == model.ModeSectioned {
		for si, section := range paper.Sections {
			for qi, q := range section.Questions {
				if attempt.Answer(si, qi) == q.CorrectAnswer {
					res.Correct++
				}
			}
		}
	} else {
		for qi, q := range paper.Questions {
			if attempt.Answer(0, qi) == q.CorrectAnswer {
				res.Correct++
			}
		}
	}

	if res.Total > 0 {
		res.Percentage = float64(res.Correct) / float64(res.Total) * 100
	}
	if res.Percentage >= passPercentage && res.Total > 0 {
		res.Grade = GradePass
	} else {
		res.Grade = GradeFail
	}
	return res
}
