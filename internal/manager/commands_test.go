// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmunder/capturist/internal/diagnose"
	"github.com/xmunder/capturist/internal/region"
	"github.com/xmunder/capturist/internal/shortcut"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/target"
)

type fakeWatcher struct {
	started    bool
	lastBinds  []shortcut.Binding
	onAction   func(shortcut.Action)
	startErr   error
	stopCalled int
}

func (w *fakeWatcher) Start(bindings []shortcut.Binding, onAction func(shortcut.Action)) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	w.lastBinds = bindings
	w.onAction = onAction
	return nil
}

func (w *fakeWatcher) Stop() { w.stopCalled++; w.started = false }

type fakeSelector struct {
	rect region.Rect
	err  error
}

func (s *fakeSelector) Select() (region.Rect, error) { return s.rect, s.err }

func newTestHost(targets []target.Target) (*Host, *fakeWatcher, *fakeSelector) {
	w := &fakeWatcher{}
	sel := &fakeSelector{}
	provider := &fakeProvider{targets: targets}
	m := New(provider, status.New(), noopFactory, "ffmpeg", "", false, false)
	h := &Host{
		Manager:  m,
		Provider: provider,
		Status:   status.New(),
		Caps:     diagnose.NewCapabilityCache(""),
		Watcher:  w,
		Selector: sel,
	}
	return h, w, sel
}

func TestHostIsCaptureSupportedDelegatesToProvider(t *testing.T) {
	h, _, _ := newTestHost(nil)
	assert.True(t, h.IsCaptureSupported())
}

func TestHostSetGlobalShortcutsStartsWatcher(t *testing.T) {
	h, w, _ := newTestHost(nil)
	binds := []shortcut.Binding{{Action: shortcut.ActionStart, VirtualKey: 0x78}}

	require.NoError(t, h.SetGlobalShortcuts(binds))
	assert.True(t, w.started)
	assert.Equal(t, binds, w.lastBinds)
}

func TestHostSetGlobalShortcutsEmptyStopsWatcher(t *testing.T) {
	h, w, _ := newTestHost(nil)
	require.NoError(t, h.SetGlobalShortcuts([]shortcut.Binding{{Action: shortcut.ActionStop, VirtualKey: 1}}))
	require.NoError(t, h.SetGlobalShortcuts(nil))
	assert.False(t, w.started)
	assert.Equal(t, 2, w.stopCalled)
}

func TestHostShortcutCallbackReachesOnShortcutTriggered(t *testing.T) {
	h, w, _ := newTestHost(nil)
	var got shortcut.Action
	h.OnShortcutTriggered = func(a shortcut.Action) { got = a }

	require.NoError(t, h.SetGlobalShortcuts([]shortcut.Binding{{Action: shortcut.ActionStop, VirtualKey: 1}}))
	w.onAction(shortcut.ActionStop)
	assert.Equal(t, shortcut.ActionStop, got)
}

func TestHostSelectRegionNativeReturnsNilOnCancel(t *testing.T) {
	h, _, sel := newTestHost([]target.Target{{ID: 1, Kind: target.KindMonitor, Primary: true, Width: 1920, Height: 1080}})
	sel.err = region.ErrCancelled

	reg, err := h.SelectRegionNative(nil)
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestHostSelectRegionNativeTranslatesAgainstPrimaryMonitor(t *testing.T) {
	h, _, sel := newTestHost([]target.Target{{ID: 1, Kind: target.KindMonitor, Primary: true, Width: 1920, Height: 1080}})
	sel.rect = region.Rect{X: 100, Y: 50, Width: 400, Height: 300}

	reg, err := h.SelectRegionNative(nil)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, 100, reg.X)
	assert.Equal(t, 50, reg.Y)
}

func TestHostSelectRegionNativeNoTargetsErrors(t *testing.T) {
	h, _, _ := newTestHost(nil)
	_, err := h.SelectRegionNative(nil)
	assert.Error(t, err)
}

func TestHostRecordingStatusReflectsLastRequestedAudioWhileIdle(t *testing.T) {
	h, _, _ := newTestHost(nil)
	_ = h.StartRecording(context.Background(), baseConfig(1))
	view := h.GetRecordingAudioStatus()
	assert.Equal(t, h.lastAudioRequest.CaptureSystemAudio, view.CaptureSystemAudio)
}

func TestHostPauseResumeStopDelegateToManager(t *testing.T) {
	h, _, _ := newTestHost(nil)
	assert.Error(t, h.PauseRecording())
	assert.Error(t, h.ResumeRecording())
	assert.NoError(t, h.StopRecording(context.Background()))
	assert.NoError(t, h.CancelRecording(context.Background()))
}
