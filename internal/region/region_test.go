// SPDX-License-Identifier: MIT

package region

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xmunder/capturist/internal/target"
)

func TestRectValidEnforcesMinimumExtent(t *testing.T) {
	assert.True(t, Rect{Width: 5, Height: 5}.Valid())
	assert.False(t, Rect{Width: 4, Height: 100}.Valid())
	assert.False(t, Rect{Width: 100, Height: 4}.Valid())
}

func TestTranslateToTargetPureTranslation(t *testing.T) {
	tgt := target.Target{ID: 1, Width: 1920, Height: 1080, OriginX: 1920, OriginY: 0, Kind: target.KindMonitor}
	sel := Rect{X: 2020, Y: 100, Width: 300, Height: 200}

	r, err := TranslateToTarget(sel, tgt, 1920, 1080)
	assert.NoError(t, err)
	assert.Equal(t, target.Region{X: 100, Y: 100, Width: 300, Height: 200}, r)
}

func TestTranslateToTargetScalesForLogicalMismatch(t *testing.T) {
	// A 3840x2160 physical monitor reported at a 150% DPI-scaled
	// logical size of 2560x1440.
	tgt := target.Target{ID: 1, Width: 2560, Height: 1440, OriginX: 0, OriginY: 0, Kind: target.KindMonitor}
	sel := Rect{X: 0, Y: 0, Width: 3840, Height: 2160}

	r, err := TranslateToTarget(sel, tgt, 3840, 2160)
	assert.NoError(t, err)
	assert.Equal(t, target.Region{X: 0, Y: 0, Width: 2560, Height: 1440}, r)
}

func TestTranslateToTargetRejectsOutOfBounds(t *testing.T) {
	tgt := target.Target{ID: 1, Width: 1920, Height: 1080, Kind: target.KindMonitor}
	sel := Rect{X: 1800, Y: 0, Width: 500, Height: 200}

	_, err := TranslateToTarget(sel, tgt, 1920, 1080)
	assert.Error(t, err)
}

func TestTranslateToTargetSkipsScalingWhenPhysicalDimsUnknown(t *testing.T) {
	tgt := target.Target{ID: 1, Width: 1920, Height: 1080, Kind: target.KindMonitor}
	sel := Rect{X: 10, Y: 10, Width: 100, Height: 100}

	r, err := TranslateToTarget(sel, tgt, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, target.Region{X: 10, Y: 10, Width: 100, Height: 100}, r)
}
