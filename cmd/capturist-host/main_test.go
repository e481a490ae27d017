// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmunder/capturist/internal/capturerun"
	"github.com/xmunder/capturist/internal/config"
	"github.com/xmunder/capturist/internal/diagnose"
	"github.com/xmunder/capturist/internal/manager"
	"github.com/xmunder/capturist/internal/region"
	"github.com/xmunder/capturist/internal/shortcut"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/target"
)

func TestRunRoutesKnownCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"no arguments shows help", nil, false},
		{"help command", []string{"help"}, false},
		{"version command", []string{"version"}, false},
		{"diagnose command", []string{"diagnose"}, false},
		{"targets command", []string{"targets"}, false},
		{"audio-devices command", []string{"audio-devices"}, false},
		{"unknown command", []string{"bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fakeWatcher struct {
	started   bool
	lastBinds []shortcut.Binding
	onAction  func(shortcut.Action)
}

func (w *fakeWatcher) Start(bindings []shortcut.Binding, onAction func(shortcut.Action)) error {
	w.started = true
	w.lastBinds = bindings
	w.onAction = onAction
	return nil
}
func (w *fakeWatcher) Stop() { w.started = false }

type fakeSelector struct{ rect region.Rect }

func (s *fakeSelector) Select() (region.Rect, error) { return s.rect, nil }

type fakeProvider struct{ targets []target.Target }

func (p *fakeProvider) IsSupported() bool                   { return true }
func (p *fakeProvider) GetTargets() ([]target.Target, error) { return p.targets, nil }

func noopFactory(target.Target, *target.Region) (capturerun.Capturer, error) { return nil, nil }

func newTestHost() *manager.Host {
	provider := &fakeProvider{targets: []target.Target{{ID: 1, Kind: target.KindMonitor, Primary: true, Width: 1920, Height: 1080}}}
	st := status.New()
	return &manager.Host{
		Manager:  manager.New(provider, st, noopFactory, "", "", false, false),
		Provider: provider,
		Status:   st,
		Caps:     diagnose.NewCapabilityCache(""),
		Watcher:  &fakeWatcher{},
		Selector: &fakeSelector{rect: region.Rect{X: 10, Y: 10, Width: 200, Height: 150}},
	}
}

func newTestServer() *server {
	return &server{host: newTestHost(), defaultCfg: *config.DefaultConfig()}
}

func TestDispatchCommandIsCaptureSupported(t *testing.T) {
	srv := newTestServer()
	result, err := dispatchCommand(context.Background(), srv, "is_capture_supported", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestDispatchCommandGetTargets(t *testing.T) {
	srv := newTestServer()
	result, err := dispatchCommand(context.Background(), srv, "get_targets", nil)
	require.NoError(t, err)
	targets, ok := result.([]target.Target)
	require.True(t, ok)
	assert.Len(t, targets, 1)
}

func TestDispatchCommandUnknownErrors(t *testing.T) {
	srv := newTestServer()
	_, err := dispatchCommand(context.Background(), srv, "nope", nil)
	assert.Error(t, err)
}

func TestDispatchCommandGetRecordingStatus(t *testing.T) {
	srv := newTestServer()
	result, err := dispatchCommand(context.Background(), srv, "get_recording_status", nil)
	require.NoError(t, err)
	view, ok := result.(recordingStatusViewT)
	require.True(t, ok)
	assert.Equal(t, "idle", view.State)
}

func TestDispatchCommandSetGlobalShortcutsParsesBindings(t *testing.T) {
	srv := newTestServer()
	params, err := json.Marshal(map[string]string{"start": "Ctrl+Shift+F9", "stop": "Esc"})
	require.NoError(t, err)

	_, err = dispatchCommand(context.Background(), srv, "set_global_shortcuts", params)
	require.NoError(t, err)

	w := srv.host.Watcher.(*fakeWatcher)
	assert.True(t, w.started)
	assert.Len(t, w.lastBinds, 2)
}

func TestDispatchCommandSelectRegionNative(t *testing.T) {
	srv := newTestServer()
	result, err := dispatchCommand(context.Background(), srv, "select_region_native", json.RawMessage(`{}`))
	require.NoError(t, err)
	reg, ok := result.(*target.Region)
	require.True(t, ok)
	require.NotNil(t, reg)
	assert.Equal(t, 10, reg.X)
}

// TestStartRecordingMergesDefaultsUnderWirePayload exercises the
// start_recording merge: the wire payload is unmarshaled onto a copy
// of srv.defaultCfg, so a field the payload omits (fps) keeps the
// configured default while a field it sets (TargetID, Encoder.*)
// overrides it.
func TestStartRecordingMergesDefaultsUnderWirePayload(t *testing.T) {
	defaultCfg := *config.DefaultConfig()
	defaultCfg.FPS = 45

	params, err := json.Marshal(map[string]interface{}{
		"TargetID": 7,
		"Encoder":  map[string]string{"OutputPath": "C:/out.mp4", "Container": "mkv"},
	})
	require.NoError(t, err)

	cfg := defaultCfg
	require.NoError(t, json.Unmarshal(params, &cfg))

	assert.Equal(t, 45, cfg.FPS, "omitted field keeps the configured default")
	assert.Equal(t, int32(7), cfg.TargetID, "payload field overrides the default")
	assert.Equal(t, "C:/out.mp4", cfg.Encoder.OutputPath)
	assert.Equal(t, config.ContainerMKV, cfg.Encoder.Container)
}
