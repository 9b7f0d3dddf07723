package model

import "time"

// ViolationKind enumerates the four proctoring counters.
type ViolationKind string

const (
	ViolationFullscreen ViolationKind = "fullscreen_exit"
	ViolationTabSwitch  ViolationKind = "tab_switch"
	ViolationNoise      ViolationKind = "noise"
	ViolationFaceAbsent ViolationKind = "face_absent"
)

// ViolationCounts holds the per-kind violation tallies for one attempt.
// Counters only ever increase until the attempt is finished.
type ViolationCounts struct {
	FullscreenExits  int `json:"fullscreen_exits"`
	TabSwitches      int `json:"tab_switches"`
	NoiseEvents      int `json:"noise_events"`
	FaceAbsentEvents int `json:"face_absent_events"`
}

// Add increments the counter for kind and returns the new value.
func (v *ViolationCounts) Add(kind ViolationKind) int {
	switch kind {
	case ViolationFullscreen:
		v.FullscreenExits++
		return v.FullscreenExits
	case ViolationTabSwitch:
		v.TabSwitches++
		return v.TabSwitches
	case ViolationNoise:
		v.NoiseEvents++
		return v.NoiseEvents
	case ViolationFaceAbsent:
		v.FaceAbsentEvents++
		return v.FaceAbsentEvents
	}
	return 0
}

// Count returns the current tally for kind.
func (v ViolationCounts) Count(kind ViolationKind) int {
	switch kind {
	case ViolationFullscreen:
		return v.FullscreenExits
	case ViolationTabSwitch:
		return v.TabSwitches
	case ViolationNoise:
		return v.NoiseEvents
	case ViolationFaceAbsent:
		return v.FaceAbsentEvents
	}
	return 0
}

// Total returns the sum of all four counters.
func (v ViolationCounts) Total() int {
	return v.FullscreenExits + v.TabSwitches + v.NoiseEvents + v.FaceAbsentEvents
}

// ViolationLimits is the configured per-kind threshold set.
type ViolationLimits struct {
	Fullscreen int
	TabSwitch  int
	Noise      int
	FaceAbsent int
}

// MeetsAll reports whether every configured threshold is simultaneously met
// or exceeded. Forced termination requires ALL four, not any one; a single
// runaway counter never disqualifies on its own.
func (v ViolationCounts) MeetsAll(limits ViolationLimits) bool {
	return v.FullscreenExits >= limits.Fullscreen &&
		v.TabSwitches >= limits.TabSwitch &&
		v.NoiseEvents >= limits.Noise &&
		v.FaceAbsentEvents >= limits.FaceAbsent
}

// ViolationEvent is one detected violation, queued for the audit worker.
type ViolationEvent struct {
	ContestID  string        `json:"contest_id"`
	StudentID  string        `json:"student_id"`
	Kind       ViolationKind `json:"kind"`
	Count      int           `json:"count"`
	OccurredAt time.Time     `json:"occurred_at"`
}
