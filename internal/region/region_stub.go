// SPDX-License-Identifier: MIT

//go:build !windows

package region

import "errors"

// ErrUnsupported is returned by the non-Windows stub selector.
var ErrUnsupported = errors.New("region: overlay selection is only supported on Windows")

type stubSelector struct{}

// NewSelector returns the live overlay Selector on Windows; elsewhere
// it returns a stub that always fails, so the core package compiles
// on every platform.
func NewSelector() Selector { return stubSelector{} }

func (stubSelector) Select() (Rect, error) { return Rect{}, ErrUnsupported }
