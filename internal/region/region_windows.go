// SPDX-License-Identifier: MIT

//go:build windows

package region

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32  = windows.NewLazySystemDLL("user32.dll")
	gdi32   = windows.NewLazySystemDLL("gdi32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRegisterClassExW         = user32.NewProc("RegisterClassExW")
	procUnregisterClassW         = user32.NewProc("UnregisterClassW")
	procCreateWindowExW          = user32.NewProc("CreateWindowExW")
	procDestroyWindow            = user32.NewProc("DestroyWindow")
	procDefWindowProcW           = user32.NewProc("DefWindowProcW")
	procShowWindow               = user32.NewProc("ShowWindow")
	procUpdateWindow             = user32.NewProc("UpdateWindow")
	procGetMessageW               = user32.NewProc("GetMessageW")
	procTranslateMessage         = user32.NewProc("TranslateMessage")
	procDispatchMessageW         = user32.NewProc("DispatchMessageW")
	procPostQuitMessage          = user32.NewProc("PostQuitMessage")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procSetLayeredWindowAttrs    = user32.NewProc("SetLayeredWindowAttributes")
	procGetSystemMetrics         = user32.NewProc("GetSystemMetrics")
	procBeginPaint               = user32.NewProc("BeginPaint")
	procEndPaint                 = user32.NewProc("EndPaint")
	procInvalidateRect           = user32.NewProc("InvalidateRect")
	procSetCapture               = user32.NewProc("SetCapture")
	procReleaseCapture           = user32.NewProc("ReleaseCapture")
	procFillRect                 = user32.NewProc("FillRect")
	procFrameRect                = user32.NewProc("FrameRect")
	procCreateSolidBrush          = gdi32.NewProc("CreateSolidBrush")
	procDeleteObject             = gdi32.NewProc("DeleteObject")
	procGetModuleHandleW         = kernel32.NewProc("GetModuleHandleW")
)

const (
	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79

	wsPopup      = 0x80000000
	wsExLayered  = 0x00080000
	wsExTopmost  = 0x00000008
	wsExToolWindow = 0x00000080

	swShow = 5

	lwaColorKey = 0x00000001

	wmDestroy     = 0x0002
	wmPaint       = 0x000F
	wmClose       = 0x0010
	wmKeyDown     = 0x0100
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmMouseMove   = 0x0200
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205

	vkEscape = 0x1B

	// overlayColorKey is the background fill the layered window makes
	// transparent via SetLayeredWindowAttributes; chosen to never
	// collide with the selection-rectangle highlight color below.
	overlayColorKey = 0x00010203
	// selectionFillColor tints the dragged rectangle so the user sees
	// what will be captured.
	selectionFillColor = 0x00FF8000
)

type wndClassExW struct {
	cbSize        uint32
	style         uint32
	lpfnWndProc   uintptr
	cbClsExtra    int32
	cbWndExtra    int32
	hInstance     windows.Handle
	hIcon         windows.Handle
	hCursor       windows.Handle
	hbrBackground windows.Handle
	lpszMenuName  *uint16
	lpszClassName *uint16
	hIconSm       windows.Handle
}

type winMsg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

type paintStruct struct {
	hdc         windows.Handle
	fErase      int32
	rcPaint     rectWin
	fRestore    int32
	fIncUpdate  int32
	rgbReserved [32]byte
}

type rectWin struct {
	Left, Top, Right, Bottom int32
}

// overlaySelector implements Selector via a full-virtual-screen
// layered borderless topmost window, per spec §4.8.
type overlaySelector struct{}

// NewSelector returns the live Windows overlay Selector.
func NewSelector() Selector { return overlaySelector{} }

// overlayState tracks the drag gesture across WndProc invocations; the
// message loop this runs on is single-threaded so no locking is
// required for the fields it touches, but Select itself may be called
// concurrently with a prior session's teardown, hence the mutex
// guarding one-selector-at-a-time.
type overlayState struct {
	dragging  bool
	start     rectWin
	current   rectWin
	result    Rect
	cancelled bool
	done      bool
}

var selectMu sync.Mutex

func (overlaySelector) Select() (Rect, error) {
	selectMu.Lock()
	defer selectMu.Unlock()

	hinst, _, _ := procGetModuleHandleW.Call(0)
	className, err := windows.UTF16PtrFromString("CapturistRegionOverlay")
	if err != nil {
		return Rect{}, fmt.Errorf("region: class name: %w", err)
	}

	state := &overlayState{}

	wndProc := syscall.NewCallback(func(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
		return overlayWndProc(state, hwnd, msg, wParam, lParam)
	})

	wc := wndClassExW{
		cbSize:        uint32(unsafe.Sizeof(wndClassExW{})),
		lpfnWndProc:   wndProc,
		hInstance:     windows.Handle(hinst),
		lpszClassName: className,
	}
	atom, _, _ := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 {
		return Rect{}, fmt.Errorf("region: RegisterClassExW failed")
	}
	defer procUnregisterClassW.Call(uintptr(unsafe.Pointer(className)), uintptr(hinst))

	x, _, _ := procGetSystemMetrics.Call(smXVirtualScreen)
	y, _, _ := procGetSystemMetrics.Call(smYVirtualScreen)
	w, _, _ := procGetSystemMetrics.Call(smCXVirtualScreen)
	h, _, _ := procGetSystemMetrics.Call(smCYVirtualScreen)

	hwnd, _, _ := procCreateWindowExW.Call(
		uintptr(wsExLayered|wsExTopmost|wsExToolWindow),
		uintptr(atom),
		0,
		uintptr(wsPopup),
		x, y, w, h,
		0, 0, uintptr(hinst), 0,
	)
	if hwnd == 0 {
		return Rect{}, fmt.Errorf("region: CreateWindowExW failed")
	}
	defer procDestroyWindow.Call(hwnd)

	procSetLayeredWindowAttrs.Call(hwnd, uintptr(overlayColorKey), 0, uintptr(lwaColorKey))
	procShowWindow.Call(hwnd, swShow)
	procUpdateWindow.Call(hwnd)

	var msg winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if ret == 0 || int32(ret) == -1 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
		if state.done {
			break
		}
	}

	if state.cancelled {
		return Rect{}, ErrCancelled
	}
	if !state.result.Valid() {
		return Rect{}, ErrTooSmall
	}
	return state.result, nil
}

func overlayWndProc(s *overlayState, hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case wmLButtonDown:
		s.dragging = true
		px, py := pointFromLParam(lParam)
		s.start = rectWin{Left: px, Top: py, Right: px, Bottom: py}
		s.current = s.start
		procSetCapture.Call(hwnd)
		return 0

	case wmMouseMove:
		if s.dragging {
			px, py := pointFromLParam(lParam)
			s.current = normalizedRect(s.start, px, py)
			procInvalidateRect.Call(hwnd, 0, 1)
		}
		return 0

	case wmLButtonUp:
		if s.dragging {
			s.dragging = false
			procReleaseCapture.Call()
			r := s.current
			s.result = Rect{
				X:      int(r.Left),
				Y:      int(r.Top),
				Width:  int(r.Right - r.Left),
				Height: int(r.Bottom - r.Top),
			}
			s.done = true
			procPostMessageW.Call(hwnd, wmClose, 0, 0)
		}
		return 0

	case wmRButtonDown, wmRButtonUp:
		s.cancelled = true
		s.done = true
		procPostMessageW.Call(hwnd, wmClose, 0, 0)
		return 0

	case wmKeyDown:
		if wParam == vkEscape {
			s.cancelled = true
			s.done = true
			procPostMessageW.Call(hwnd, wmClose, 0, 0)
		}
		return 0

	case wmPaint:
		paintSelection(hwnd, s)
		return 0

	case wmClose:
		procDestroyWindow.Call(hwnd)
		return 0

	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

func paintSelection(hwnd uintptr, s *overlayState) {
	var ps paintStruct
	hdc, _, _ := procBeginPaint.Call(hwnd, uintptr(unsafe.Pointer(&ps)))
	defer procEndPaint.Call(hwnd, uintptr(unsafe.Pointer(&ps)))
	if !s.dragging && s.current == (rectWin{}) {
		return
	}
	brush, _, _ := procCreateSolidBrush.Call(uintptr(selectionFillColor))
	defer procDeleteObject.Call(brush)
	procFrameRect.Call(hdc, uintptr(unsafe.Pointer(&s.current)), brush)
}

func pointFromLParam(lParam uintptr) (int32, int32) {
	x := int32(int16(lParam & 0xFFFF))
	y := int32(int16((lParam >> 16) & 0xFFFF))
	return x, y
}

func normalizedRect(start rectWin, px, py int32) rectWin {
	left, right := start.Left, px
	if left > right {
		left, right = right, left
	}
	top, bottom := start.Top, py
	if top > bottom {
		top, bottom = bottom, top
	}
	return rectWin{Left: left, Top: top, Right: right, Bottom: bottom}
}
