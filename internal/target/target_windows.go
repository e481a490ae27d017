// SPDX-License-Identifier: MIT

//go:build windows

package target

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
	procEnumWindows         = user32.NewProc("EnumWindows")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procIsWindowVisible     = user32.NewProc("IsWindowVisible")
	procIsIconic            = user32.NewProc("IsIconic")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procDwmGetWindowAttribute = windows.NewLazySystemDLL("dwmapi.dll").NewProc("DwmGetWindowAttribute")
)

const (
	monitorInfofPrimary = 0x1
	dwmwaCloaked        = 14
)

// rect mirrors the Win32 RECT struct layout.
type rect struct {
	Left, Top, Right, Bottom int32
}

// monitorInfoEx mirrors MONITORINFOEXW, including the fixed-size
// szDevice array that enumMonitors reads as the monitor name.
type monitorInfoEx struct {
	cbSize    uint32
	rcMonitor rect
	rcWork    rect
	dwFlags   uint32
	szDevice  [32]uint16
}

// osBlocklist names system-shell processes the spec excludes from the
// window list even though they own top-level windows (taskbar, start
// menu, shell experience host, and their search-UI companion).
var osBlocklist = map[string]struct{}{
	"explorer.exe":              {},
	"shellexperiencehost.exe":   {},
	"startmenuexperiencehost.exe": {},
	"searchhost.exe":            {},
	"searchapp.exe":             {},
	"textinputhost.exe":         {},
}

// osk title variants across localized Windows builds; the on-screen
// keyboard is excluded regardless of display language.
var oskTitles = map[string]struct{}{
	"on-screen keyboard": {},
	"teclado en pantalla": {},
	"clavier visuel":      {},
	"bildschirmtastatur":  {},
}

type winProvider struct{}

// NewProvider returns the live Windows Screen Provider.
func NewProvider() Provider { return winProvider{} }

func (winProvider) IsSupported() bool { return true }

func (winProvider) GetTargets() ([]Target, error) {
	monitors, err := enumMonitors()
	if err != nil {
		return nil, fmt.Errorf("target: enumerate monitors: %w", err)
	}
	windows_, err := enumWindows()
	if err != nil {
		return nil, fmt.Errorf("target: enumerate windows: %w", err)
	}
	out := make([]Target, 0, len(monitors)+len(windows_))
	out = append(out, monitors...)
	out = append(out, windows_...)
	Sort(out)
	return out, nil
}

func enumMonitors() ([]Target, error) {
	var targets []Target
	cb := syscall.NewCallback(func(hMonitor, _ uintptr, _ *rect, _ uintptr) uintptr {
		var mi monitorInfoEx
		mi.cbSize = uint32(unsafe.Sizeof(mi))
		ret, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&mi)))
		if ret == 0 {
			return 1 // keep enumerating
		}
		name := windows.UTF16ToString(mi.szDevice[:])
		w := int(mi.rcMonitor.Right - mi.rcMonitor.Left)
		h := int(mi.rcMonitor.Bottom - mi.rcMonitor.Top)
		if w <= 0 || h <= 0 {
			return 1
		}
		targets = append(targets, Target{
			ID:      MixHandle(uint64(hMonitor), MonitorSalt),
			Name:    name,
			Width:   w,
			Height:  h,
			OriginX: int(mi.rcMonitor.Left),
			OriginY: int(mi.rcMonitor.Top),
			Primary: mi.dwFlags&monitorInfofPrimary != 0,
			Kind:    KindMonitor,
		})
		return 1
	})
	ret, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors: %w", err)
	}
	return targets, nil
}

func enumWindows() ([]Target, error) {
	var targets []Target
	cb := syscall.NewCallback(func(hwnd, _ uintptr) uintptr {
		if t, ok := windowTarget(hwnd); ok {
			targets = append(targets, t)
		}
		return 1 // keep enumerating
	})
	ret, _, err := procEnumWindows.Call(cb, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return targets, nil
}

// windowTarget applies spec §4.2's filtering rules: visible, not
// minimized, not DWM-cloaked, non-empty title, title not matching any
// localized on-screen-keyboard variant, owning process not on the
// shell blocklist, and width/height both at least 64px.
func windowTarget(hwnd uintptr) (Target, bool) {
	visible, _, _ := procIsWindowVisible.Call(hwnd)
	if visible == 0 {
		return Target{}, false
	}
	iconic, _, _ := procIsIconic.Call(hwnd)
	if iconic != 0 {
		return Target{}, false
	}

	var cloaked int32
	procDwmGetWindowAttribute.Call(hwnd, dwmwaCloaked, uintptr(unsafe.Pointer(&cloaked)), unsafe.Sizeof(cloaked))
	if cloaked != 0 {
		return Target{}, false
	}

	title := windowText(hwnd)
	if strings.TrimSpace(title) == "" {
		return Target{}, false
	}
	if _, blocked := oskTitles[strings.ToLower(title)]; blocked {
		return Target{}, false
	}

	var r rect
	ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
	if ret == 0 {
		return Target{}, false
	}
	w := int(r.Right - r.Left)
	h := int(r.Bottom - r.Top)
	if w < 64 || h < 64 {
		return Target{}, false
	}

	if name, ok := ownerProcessName(hwnd); ok {
		if _, blocked := osBlocklist[strings.ToLower(name)]; blocked {
			return Target{}, false
		}
	}

	return Target{
		ID:      MixHandle(uint64(hwnd), WindowSalt),
		Name:    title,
		Width:   w,
		Height:  h,
		OriginX: int(r.Left),
		OriginY: int(r.Top),
		Primary: false,
		Kind:    KindWindow,
	}, true
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), n+1)
	return windows.UTF16ToString(buf)
}

func ownerProcessName(hwnd uintptr) (string, bool) {
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return "", false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", false
	}
	full := windows.UTF16ToString(buf[:size])
	if idx := strings.LastIndexByte(full, '\\'); idx >= 0 {
		full = full[idx+1:]
	}
	return full, true
}
