// SPDX-License-Identifier: MIT

//go:build windows

package shortcut

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey   = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey = user32.NewProc("UnregisterHotKey")
	procGetMessageW      = user32.NewProc("GetMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
	procPeekMessageW      = user32.NewProc("PeekMessageW")
)

const (
	wmHotkey   = 0x0312
	wmQuit     = 0x0012
	pmRemove   = 0x0001
	cooldown   = 220 * time.Millisecond
)

type tagMSG struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// winWatcher implements Watcher via RegisterHotKey, per spec §4.9's
// redesigned (non-polling) behavior. It owns exactly one OS thread,
// locked for the lifetime of the message loop, since RegisterHotKey
// and its WM_HOTKEY deliveries are bound to the registering thread.
type winWatcher struct {
	mu       sync.Mutex
	threadID uint32
	done     chan struct{}
}

// NewWatcher returns the live Windows global-hotkey Watcher.
func NewWatcher() Watcher { return &winWatcher{} }

func (w *winWatcher) Start(bindings []Binding, onAction func(Action)) error {
	if err := Dedup(bindings); err != nil {
		return err
	}

	w.mu.Lock()
	if w.threadID != 0 {
		w.mu.Unlock()
		return fmt.Errorf("shortcut: watcher already started")
	}
	w.done = make(chan struct{})
	w.mu.Unlock()

	ready := make(chan error, 1)
	go w.run(bindings, onAction, ready)
	return <-ready
}

func (w *winWatcher) run(bindings []Binding, onAction func(Action), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.mu.Lock()
	w.threadID = windows.GetCurrentThreadId()
	w.mu.Unlock()

	// Force message-queue creation before any RegisterHotKey call so
	// a WM_HOTKEY delivered before GetMessageW's first call is not lost.
	var peek tagMSG
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&peek)), 0, 0, 0, pmRemove)

	for i, b := range bindings {
		ret, _, err := procRegisterHotKey.Call(0, uintptr(i+1), uintptr(b.Modifiers), uintptr(b.VirtualKey))
		if ret == 0 {
			ready <- fmt.Errorf("shortcut: RegisterHotKey(%s): %w", b.Action, err)
			close(w.done)
			return
		}
	}
	ready <- nil

	lastFired := make(map[int]time.Time, len(bindings))

	var msg tagMSG
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if r == 0 || int32(r) == -1 {
			break
		}
		if msg.message == wmHotkey {
			id := int(msg.wParam)
			if id >= 1 && id <= len(bindings) {
				now := time.Now()
				if last, ok := lastFired[id]; !ok || now.Sub(last) >= cooldown {
					lastFired[id] = now
					onAction(bindings[id-1].Action)
				}
			}
		}
	}

	for i := range bindings {
		procUnregisterHotKey.Call(0, uintptr(i+1))
	}
	close(w.done)
}

func (w *winWatcher) Stop() {
	w.mu.Lock()
	threadID := w.threadID
	w.threadID = 0
	done := w.done
	w.mu.Unlock()

	if threadID == 0 {
		return
	}
	procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
	if done != nil {
		<-done
	}
}
