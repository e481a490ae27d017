// SPDX-License-Identifier: MIT

// Package target implements the Screen Provider (capture target
// enumeration): stable per-handle IDs, window-filtering rules, and the
// sort order the Capture Manager hands to the UI.
package target

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind distinguishes a monitor from a window target.
type Kind int

const (
	KindMonitor Kind = iota
	KindWindow
)

func (k Kind) String() string {
	if k == KindMonitor {
		return "monitor"
	}
	return "window"
}

// rank orders monitors before windows, per spec §4.2's sort key.
func (k Kind) rank() int {
	if k == KindMonitor {
		return 0
	}
	return 1
}

// Salts distinguish the same raw OS handle value appearing as both a
// monitor and a window handle from colliding on the same target ID.
const (
	MonitorSalt uint32 = 0x4D4F4E31 // "MON1"
	WindowSalt  uint32 = 0x57494E31 // "WIN1"
)

// Target is the CaptureTarget entity: a capturable source (monitor or
// window) with a stable numeric ID. Instances are never mutated after
// enumeration; only the ID is meaningful across separate enumerations.
type Target struct {
	ID      uint32
	Name    string
	Width   int
	Height  int
	OriginX int
	OriginY int
	Primary bool
	Kind    Kind
}

// Region is a non-negative crop rectangle.
type Region struct {
	X, Y, Width, Height int
}

// Validate enforces the crop invariant: the region must fit entirely
// within the target and have positive extents.
func (r Region) Validate(t Target) error {
	if r.Width <= 0 || r.Height <= 0 {
		return errInvalidRegion("width and height must be positive")
	}
	if r.X < 0 || r.Y < 0 {
		return errInvalidRegion("origin must be non-negative")
	}
	if r.X+r.Width > t.Width {
		return errInvalidRegion("exceeds target width")
	}
	if r.Y+r.Height > t.Height {
		return errInvalidRegion("exceeds target height")
	}
	return nil
}

type regionError string

func (e regionError) Error() string { return string(e) }

func errInvalidRegion(msg string) error { return regionError(msg) }

// MixHandle deterministically mixes a 64-bit OS handle with a
// kind-specific salt into a non-zero 32-bit target ID, so the same
// monitor/window handle yields the same ID across enumerations.
//
// xxhash gives us a well-distributed 64-bit digest over the
// (handle, salt) pair; folding the two 32-bit halves together keeps
// collisions rare without hand-rolling a mixer.
func MixHandle(handle uint64, salt uint32) uint32 {
	var buf [12]byte
	buf[0] = byte(handle)
	buf[1] = byte(handle >> 8)
	buf[2] = byte(handle >> 16)
	buf[3] = byte(handle >> 24)
	buf[4] = byte(handle >> 32)
	buf[5] = byte(handle >> 40)
	buf[6] = byte(handle >> 48)
	buf[7] = byte(handle >> 56)
	buf[8] = byte(salt)
	buf[9] = byte(salt >> 8)
	buf[10] = byte(salt >> 16)
	buf[11] = byte(salt >> 24)

	h := xxhash.Sum64(buf[:])
	mixed := uint32(h) ^ uint32(h>>32)
	if mixed == 0 {
		return 1
	}
	return mixed
}

// Provider enumerates capturable targets. Implementations are
// OS-specific (see target_windows.go); a stub exists only to keep the
// core compiling on non-Windows platforms.
type Provider interface {
	IsSupported() bool
	GetTargets() ([]Target, error)
}

// Sort orders targets monitors-before-windows, primary-first,
// case-insensitive name, then ID — the exact key spec §4.2 names.
func Sort(targets []Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.Kind.rank() != b.Kind.rank() {
			return a.Kind.rank() < b.Kind.rank()
		}
		if a.Primary != b.Primary {
			return a.Primary // primary first
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}
