// SPDX-License-Identifier: MIT

// Package wincom holds the COM plumbing audiocap uses to talk to
// WASAPI: apartment init/uninit pairing, IUnknown release, and raw
// vtable calls. target, region and shortcut call Win32 directly
// through golang.org/x/sys/windows and do not use this package.
package wincom

import (
	"fmt"
	"runtime"
	"sync"

	ole "github.com/go-ole/go-ole"
)

// Apartment represents one CoInitializeEx pairing on the current OS
// thread. Every successful Init is paired with exactly one Close,
// called on the same goroutine/thread — callers must LockOSThread
// around the lifetime of the Apartment, matching spec §5's COM rule.
type Apartment struct {
	mu   sync.Mutex
	init bool
}

// InitMTA initializes COM in the multithreaded apartment model on the
// current OS thread, as every WASAPI/DXGI worker in this codebase
// requires (spec §4.6: "its own COM initialization in multithreaded
// mode"). Callers must have already called runtime.LockOSThread.
func InitMTA() (*Apartment, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return nil, fmt.Errorf("wincom: CoInitializeEx(MTA): %w", err)
	}
	return &Apartment{init: true}, nil
}

// Close uninitializes COM on the thread that created the Apartment.
// Safe to call more than once; only the first call has an effect.
func (a *Apartment) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.init {
		return
	}
	a.init = false
	ole.CoUninitialize()
}

// WithMTA locks the calling goroutine to its OS thread, initializes a
// multithreaded COM apartment, runs fn, and guarantees symmetric
// teardown; audiocap's device enumeration runs inside it.
func WithMTA(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	apt, err := InitMTA()
	if err != nil {
		return err
	}
	defer apt.Close()

	return fn()
}

// Release decrements an IUnknown reference if non-nil, matching the
// one-reference-in one-reference-out discipline frame.GPUFrame uses
// for GPU textures.
func Release(u *ole.IUnknown) {
	if u != nil {
		u.Release()
	}
}
