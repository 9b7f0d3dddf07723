package model

import "strconv"

// AttemptMode distinguishes the two exam variants.
type AttemptMode string

const (
	ModeFlat      AttemptMode = "flat"
	ModeSectioned AttemptMode = "sectioned"
)

// Duration is the `{hours, minutes}` shape served by the assessment API.
// Both fields arrive as strings and may be empty.
type Duration struct {
	Hours   string `json:"hours"`
	Minutes string `json:"minutes"`
}

// Seconds converts the duration to whole seconds. Unparseable components
// count as zero, mirroring how the API tolerates partial durations.
func (d Duration) Seconds() int {
	h, _ := strconv.Atoi(d.Hours)
	m, _ := strconv.Atoi(d.Minutes)
	return h*3600 + m*60
}

// Question is a single MCQ item. CorrectAnswer is only used for local
// trust-but-verify grading and must never be echoed back to the shell.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Section groups questions under a shared name and its own duration.
type Section struct {
	Name      string     `json:"sectionName"`
	Questions []Question `json:"questions"`
	Duration  Duration   `json:"duration"`
}

// ExamPaper is the fetched question set for one contest. Flat papers carry
// Questions and a single Duration; sectioned papers carry Sections. The
// paper is fetched once at attempt start and treated as immutable.
type ExamPaper struct {
	ContestID string
	Mode      AttemptMode
	Questions []Question
	Duration  Duration
	Sections  []Section
}

// SectionCount returns the number of answer buckets the attempt needs:
// one per section, or exactly one in flat mode.
func (p *ExamPaper) SectionCount() int {
	if p.Mode == ModeSectioned {
		return len(p.Sections)
	}
	return 1
}

// QuestionCount returns the number of questions in the given section bucket.
func (p *ExamPaper) QuestionCount(section int) int {
	if p.Mode == ModeSectioned {
		if section < 0 || section >= len(p.Sections) {
			return 0
		}
		return len(p.Sections[section].Questions)
	}
	if section != 0 {
		return 0
	}
	return len(p.Questions)
}

// TotalQuestions returns the question count across all sections.
func (p *ExamPaper) TotalQuestions() int {
	if p.Mode != ModeSectioned {
		return len(p.Questions)
	}
	total := 0
	for _, s := range p.Sections {
		total += len(s.Questions)
	}
	return total
}

// SectionDurations returns the per-section durations in seconds,
// index-aligned with Sections. Flat papers return a single element.
func (p *ExamPaper) SectionDurations() []int {
	if p.Mode != ModeSectioned {
		return []int{p.Duration.Seconds()}
	}
	out := make([]int, len(p.Sections))
	for i, s := range p.Sections {
		out[i] = s.Duration.Seconds()
	}
	return out
}

// TotalDurationSeconds returns the aggregate exam duration. For sectioned
// papers this is the sum of the section durations; the two never diverge.
func (p *ExamPaper) TotalDurationSeconds() int {
	if p.Mode != ModeSectioned {
		return p.Duration.Seconds()
	}
	total := 0
	for _, s := range p.Sections {
		total += s.Duration.Seconds()
	}
	return total
}
