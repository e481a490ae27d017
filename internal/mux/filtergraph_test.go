// SPDX-License-Identifier: MIT

package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xmunder/capturist/internal/videoenc"
)

func TestEffectiveDelayCapsEachComponent(t *testing.T) {
	assert.Equal(t, 200+1000+1000, EffectiveDelay(200, 5000, 5000))
}

func TestBypassOnlyForLoneUnmodifiedSystemTrack(t *testing.T) {
	sys := Track{Source: SourceSystem, GainPct: 100}
	mic := Track{Source: SourceMicrophone, GainPct: 100}

	assert.True(t, Bypass([]Track{sys}, []int{0}, videoenc.QualityBalanced))
	assert.False(t, Bypass([]Track{sys}, []int{0}, videoenc.QualityQuality))
	assert.False(t, Bypass([]Track{sys}, []int{50}, videoenc.QualityBalanced))
	assert.False(t, Bypass([]Track{mic}, []int{0}, videoenc.QualityBalanced))
	assert.False(t, Bypass([]Track{sys, mic}, []int{0, 0}, videoenc.QualityBalanced))
}

func TestFilterGraphSingleTrackSkipsPostMixDSP(t *testing.T) {
	g := FilterGraph([]Track{{Source: SourceSystem, GainPct: 100}}, []int{0}, videoenc.QualityQuality)
	assert.Contains(t, g, "[1:a]")
	assert.Contains(t, g, "[aout]")
	assert.NotContains(t, g, "amix")
}

func TestFilterGraphMultiTrackMixesThenAppliesPostDSP(t *testing.T) {
	tracks := []Track{{Source: SourceSystem, GainPct: 100}, {Source: SourceMicrophone, GainPct: 100}}
	g := FilterGraph(tracks, []int{0, 0}, videoenc.QualityQuality)
	assert.Contains(t, g, "amix=inputs=2")
	assert.Contains(t, g, "highpass=80,lowpass=14000")
	assert.Contains(t, g, "[aout]")
}

func TestFilterGraphPerformanceModeSkipsPostMixDSP(t *testing.T) {
	tracks := []Track{{Source: SourceSystem, GainPct: 100}, {Source: SourceMicrophone, GainPct: 100}}
	g := FilterGraph(tracks, []int{0, 0}, videoenc.QualityPerformance)
	assert.NotContains(t, g, "highpass=80")
	assert.Contains(t, g, "anull[aout]")
}

func TestMicrophoneDSPVariesByQualityMode(t *testing.T) {
	assert.Empty(t, micDSP(videoenc.QualityPerformance))
	assert.Contains(t, micDSP(videoenc.QualityBalanced), "highpass=120,lowpass=9000")
	assert.Contains(t, micDSP(videoenc.QualityQuality), "afftdn")
}

func TestTrackChainAddsDelayAndGain(t *testing.T) {
	c := trackChain(Track{Source: SourceSystem, GainPct: 150}, 40, videoenc.QualityBalanced)
	assert.Contains(t, c, "adelay=40|40")
	assert.Contains(t, c, "volume=1.5")
}
