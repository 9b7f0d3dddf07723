package grading

import (
	"testing"
	"time"

	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func sectionedPaper() *model.ExamPaper {
	return &model.ExamPaper{
		ContestID: "contest-1",
		Mode:      model.ModeSectioned,
		Sections: []model.Section{
			{
				Name: "A",
				Questions: []model.Question{
					{Text: "A1", CorrectAnswer: "x"},
					{Text: "A2", CorrectAnswer: "y"},
					{Text: "A3", CorrectAnswer: "x"},
					{Text: "A4", CorrectAnswer: "y"},
					{Text: "A5", CorrectAnswer: "x"},
				},
			},
			{
				Name: "B",
				Questions: []model.Question{
					{Text: "B1", CorrectAnswer: "x"},
					{Text: "B2", CorrectAnswer: "y"},
					{Text: "B3", CorrectAnswer: "x"},
					{Text: "B4", CorrectAnswer: "y"},
					{Text: "B5", CorrectAnswer: "x"},
				},
			},
		},
	}
}

func TestGradeCountsAcrossAllSections(t *testing.T) {
	paper := sectionedPaper()
	attempt := model.NewExamAttempt(paper, "student-1", time.Now())

	// 4 correct in section A, 2 correct in section B: 6/10 at a 60% bar.
	attempt.Answers[0] = map[int]string{0: "x", 1: "y", 2: "x", 3: "y", 4: "wrong"}
	attempt.Answers[1] = map[int]string{0: "x", 1: "y"}

	res := Grade(paper, attempt, 60)
	assert.Equal(t, 6, res.Correct)
	assert.Equal(t, 10, res.Total)
	assert.InDelta(t, 60.0, res.Percentage, 0.001)
	assert.Equal(t, GradePass, res.Grade, "exactly at the bar passes")
}

func TestGradeFailBelowBar(t *testing.T) {
	paper := sectionedPaper()
	attempt := model.NewExamAttempt(paper, "student-1", time.Now())
	attempt.Answers[0] = map[int]string{0: "x"}

	res := Grade(paper, attempt, 60)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, GradeFail, res.Grade)
}

func TestGradeFlatPaper(t *testing.T) {
	paper := &model.ExamPaper{
		ContestID: "contest-1",
		Mode:      model.ModeFlat,
		Questions: []model.Question{
			{Text: "Q1", CorrectAnswer: "a"},
			{Text: "Q2", CorrectAnswer: "b"},
		},
	}
	attempt := model.NewExamAttempt(paper, "student-1", time.Now())
	attempt.Answers[0][0] = "a"

	res := Grade(paper, attempt, 40)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, GradePass, res.Grade)
}

func TestGradeEmptyPaperFails(t *testing.T) {
	paper := &model.ExamPaper{ContestID: "contest-1", Mode: model.ModeFlat}
	attempt := model.NewExamAttempt(paper, "student-1", time.Now())

	res := Grade(paper, attempt, 0)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, GradeFail, res.Grade)
}
