// SPDX-License-Identifier: MIT

package videoenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGOPSizeClamped(t *testing.T) {
	assert.Equal(t, 30, GOPSize(1))
	assert.Equal(t, 60, GOPSize(30))
	assert.Equal(t, 300, GOPSize(200))
}

func TestDeriveBitratesClampedToBounds(t *testing.T) {
	tiny := DeriveBitrates(160, 120, 1, QualityPerformance, CodecH264)
	assert.Equal(t, 2500, tiny.TargetKbps)

	huge := DeriveBitrates(7680, 4320, 120, QualityQuality, CodecH264)
	assert.Equal(t, 80000, huge.TargetKbps)
}

func TestDeriveBitratesMaxrateAndBufsizeScaleWithMode(t *testing.T) {
	perf := DeriveBitrates(1920, 1080, 30, QualityPerformance, CodecH264)
	quality := DeriveBitrates(1920, 1080, 30, QualityQuality, CodecH264)
	assert.Equal(t, perf.TargetKbps, perf.MaxrateKbps, "performance mode maxrate == target (100%%)")
	assert.Greater(t, quality.MaxrateKbps, quality.TargetKbps)
	assert.Greater(t, quality.BufsizeKbps, perf.BufsizeKbps)
}

func TestDeriveOptionsNVENCPerformanceUsesCBR(t *testing.T) {
	o := DeriveOptions(BackendNVENC, CodecH264, QualityPerformance, 23, "ultrafast", 30, 1920, 1080)
	has := func(k, v string) bool {
		for _, e := range o.Entries {
			if e.Key == k {
				return e.Value == v
			}
		}
		return false
	}
	assert.True(t, has("rc", "cbr"))
	assert.True(t, has("preset", "p3"))
}

func TestDeriveOptionsSoftwareH26x(t *testing.T) {
	o := DeriveOptions(BackendSoftwareH26x, CodecH264, QualityBalanced, 23, "veryfast", 30, 1280, 720)
	var crf, preset, tune string
	for _, e := range o.Entries {
		switch e.Key {
		case "crf":
			crf = e.Value
		case "preset":
			preset = e.Value
		case "tune":
			tune = e.Value
		}
	}
	assert.Equal(t, "23", crf)
	assert.Equal(t, "veryfast", preset)
	assert.Equal(t, "zerolatency", tune)
}
