// SPDX-License-Identifier: MIT

//go:build !windows

package audiocap

// EnumerateInputDevices returns ErrUnsupported on non-Windows
// platforms; WASAPI endpoint enumeration is Windows-only.
func EnumerateInputDevices() ([]string, error) { return nil, ErrUnsupported }
