package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViolationCountsAddAndTotal(t *testing.T) {
	var v ViolationCounts
	assert.Equal(t, 1, v.Add(ViolationFullscreen))
	assert.Equal(t, 2, v.Add(ViolationFullscreen))
	assert.Equal(t, 1, v.Add(ViolationTabSwitch))
	assert.Equal(t, 1, v.Add(ViolationNoise))
	assert.Equal(t, 1, v.Add(ViolationFaceAbsent))
	assert.Equal(t, 0, v.Add(ViolationKind("bogus")))

	assert.Equal(t, 2, v.Count(ViolationFullscreen))
	assert.Equal(t, 5, v.Total())
}

func TestMeetsAllRequiresEveryThreshold(t *testing.T) {
	limits := ViolationLimits{Fullscreen: 3, TabSwitch: 1, Noise: 2, FaceAbsent: 3}

	// Far past one limit but short on another.
	v := ViolationCounts{FullscreenExits: 10, TabSwitches: 10, NoiseEvents: 10, FaceAbsentEvents: 2}
	assert.False(t, v.MeetsAll(limits))

	v.FaceAbsentEvents = 3
	assert.True(t, v.MeetsAll(limits))

	// Exceeding also qualifies.
	v = ViolationCounts{FullscreenExits: 4, TabSwitches: 2, NoiseEvents: 3, FaceAbsentEvents: 5}
	assert.True(t, v.MeetsAll(limits))
}
