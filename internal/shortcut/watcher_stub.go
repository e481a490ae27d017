// SPDX-License-Identifier: MIT

//go:build !windows

package shortcut

import "errors"

// ErrUnsupported is returned by the non-Windows stub watcher.
var ErrUnsupported = errors.New("shortcut: global hotkey registration is only supported on Windows")

type stubWatcher struct{}

// NewWatcher returns the live Watcher on Windows; elsewhere it returns
// a stub that always fails to start, so the core package compiles on
// every platform.
func NewWatcher() Watcher { return stubWatcher{} }

func (stubWatcher) Start([]Binding, func(Action)) error { return ErrUnsupported }
func (stubWatcher) Stop()                               {}
