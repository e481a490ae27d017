// SPDX-License-Identifier: MIT

//go:build !windows

package target

import "errors"

// ErrUnsupported is returned by the stub provider's GetTargets on any
// platform other than Windows; screen capture is a Windows-only
// feature of this codebase.
var ErrUnsupported = errors.New("target: screen capture is only supported on Windows")

type stubProvider struct{}

// NewProvider returns a stub Screen Provider on non-Windows platforms
// so the rest of the module still builds and tests in CI.
func NewProvider() Provider { return stubProvider{} }

func (stubProvider) IsSupported() bool { return false }

func (stubProvider) GetTargets() ([]Target, error) { return nil, ErrUnsupported }
