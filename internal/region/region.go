// SPDX-License-Identifier: MIT

// Package region implements the Region Selector (C11): a modal overlay
// that lets the user drag out a rectangle on the virtual screen, plus
// the coordinate translation used when that rectangle is expressed
// relative to a capture target instead of the virtual screen.
package region

import (
	"errors"

	"github.com/xmunder/capturist/internal/target"
)

// ErrCancelled is returned when the user aborts the selection via
// right-click or Esc.
var ErrCancelled = errors.New("region: selection cancelled")

// ErrTooSmall is returned when the drag release rectangle is smaller
// than the minimum 5x5 pixel extent the spec requires.
var ErrTooSmall = errors.New("region: selection below minimum size")

const minSelectionPx = 5

// Rect is a virtual-screen-coordinate pixel rectangle, left/top
// inclusive, matching the sign convention of target.Region.
type Rect struct {
	X, Y, Width, Height int
}

// Valid reports whether r meets the minimum drag-release extent.
func (r Rect) Valid() bool {
	return r.Width >= minSelectionPx && r.Height >= minSelectionPx
}

// Selector presents the overlay and returns the dragged rectangle in
// virtual-screen coordinates. Implementations are OS-specific; see
// region_windows.go. A stub exists so the core package compiles on
// non-Windows platforms.
type Selector interface {
	Select() (Rect, error)
}

// TranslateToTarget converts a virtual-screen rectangle selected over
// t into target-local coordinates, proportionally scaling if the
// target's logical size (as reported by the Screen Provider) differs
// from its physical screen size — e.g. a monitor enumerated at a
// DPI-scaled logical resolution while the overlay itself always
// operates in physical pixels.
//
// physicalWidth/physicalHeight are the target's physical pixel
// dimensions as measured by the overlay's own coordinate space; when
// they match t.Width/t.Height exactly, this is a pure translation.
func TranslateToTarget(r Rect, t target.Target, physicalWidth, physicalHeight int) (target.Region, error) {
	local := Rect{
		X:      r.X - t.OriginX,
		Y:      r.Y - t.OriginY,
		Width:  r.Width,
		Height: r.Height,
	}

	if physicalWidth > 0 && physicalHeight > 0 && (physicalWidth != t.Width || physicalHeight != t.Height) {
		scaleX := float64(t.Width) / float64(physicalWidth)
		scaleY := float64(t.Height) / float64(physicalHeight)
		local = Rect{
			X:      int(float64(local.X) * scaleX),
			Y:      int(float64(local.Y) * scaleY),
			Width:  int(float64(local.Width) * scaleX),
			Height: int(float64(local.Height) * scaleY),
		}
	}

	out := target.Region{X: local.X, Y: local.Y, Width: local.Width, Height: local.Height}
	if err := out.Validate(t); err != nil {
		return target.Region{}, err
	}
	return out, nil
}
