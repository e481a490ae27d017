// SPDX-License-Identifier: MIT

// Package shortcut implements the Shortcut Watcher (C12): global
// keyboard bindings for start, pause/resume, and stop, each parsed
// into {modifiers, virtual-key}, deduplicated, and delivered to the UI
// as named events from one background thread.
//
// The original poll loop (3 ms global key-state scan) is replaced with
// WM_HOTKEY-based registration: the watcher registers each binding
// once and translates the resulting messages. The hotkeys are
// registered without MOD_NOREPEAT, so the watcher keeps the 220 ms
// per-binding cooldown and drops a repeat of the same hotkey that
// arrives sooner.
package shortcut

import (
	"errors"
	"fmt"
	"strings"
)

// Action names the three events the watcher can emit.
type Action string

const (
	ActionStart       Action = "start"
	ActionPauseResume Action = "pause_resume"
	ActionStop        Action = "stop"
)

// Modifier bits mirror the Win32 MOD_* constants RegisterHotKey
// expects, so Binding.Modifiers can be passed straight through on the
// Windows implementation without re-translation.
type Modifier uint32

const (
	ModAlt     Modifier = 0x0001
	ModControl Modifier = 0x0002
	ModShift   Modifier = 0x0004
	ModWin     Modifier = 0x0008
)

// Binding is one {modifiers, virtual-key} pair bound to an Action.
type Binding struct {
	Action    Action
	Modifiers Modifier
	VirtualKey uint32
}

// key uniquely identifies a binding's trigger, independent of the
// Action it fires, used for deduplication.
func (b Binding) key() uint64 {
	return uint64(b.Modifiers)<<32 | uint64(b.VirtualKey)
}

// ErrDuplicateBinding is returned when two bind-triples share the same
// {modifiers, virtual-key} pair.
var ErrDuplicateBinding = errors.New("shortcut: duplicate modifier/virtual-key combination")

// ErrUnknownModifier is returned by ParseBinding for a token it does
// not recognize.
var ErrUnknownModifier = errors.New("shortcut: unknown modifier token")

// Dedup validates that no two bindings in set share a trigger,
// returning ErrDuplicateBinding (wrapped with both actions) if so.
func Dedup(set []Binding) error {
	seen := make(map[uint64]Action, len(set))
	for _, b := range set {
		if other, ok := seen[b.key()]; ok {
			return fmt.Errorf("%w: %s and %s", ErrDuplicateBinding, other, b.Action)
		}
		seen[b.key()] = b.Action
	}
	return nil
}

// ParseBinding parses a "Ctrl+Shift+F9"-style spec into a Binding for
// action. Recognized modifier tokens: Ctrl, Alt, Shift, Win
// (case-insensitive); the trailing token is the virtual-key name,
// resolved by vkLookup.
func ParseBinding(action Action, spec string, vkLookup func(name string) (uint32, bool)) (Binding, error) {
	parts := strings.Split(spec, "+")
	if len(parts) == 0 {
		return Binding{}, fmt.Errorf("shortcut: empty binding for %s", action)
	}

	var mods Modifier
	for _, tok := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "ctrl", "control":
			mods |= ModControl
		case "alt":
			mods |= ModAlt
		case "shift":
			mods |= ModShift
		case "win", "super":
			mods |= ModWin
		default:
			return Binding{}, fmt.Errorf("%w: %q", ErrUnknownModifier, tok)
		}
	}

	keyTok := strings.TrimSpace(parts[len(parts)-1])
	vk, ok := vkLookup(keyTok)
	if !ok {
		return Binding{}, fmt.Errorf("shortcut: unknown virtual-key %q", keyTok)
	}

	return Binding{Action: action, Modifiers: mods, VirtualKey: vk}, nil
}

// Watcher owns the background thread that registers bindings and
// emits Action events until Stop is called. Implementations are
// OS-specific; see watcher_windows.go.
type Watcher interface {
	Start(bindings []Binding, onAction func(Action)) error
	Stop()
}
