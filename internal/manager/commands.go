// SPDX-License-Identifier: MIT

package manager

import (
	"context"

	"github.com/xmunder/capturist/internal/audiocap"
	"github.com/xmunder/capturist/internal/config"
	"github.com/xmunder/capturist/internal/diagnose"
	"github.com/xmunder/capturist/internal/region"
	"github.com/xmunder/capturist/internal/shortcut"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/target"
)

// AudioStatusView mirrors get_recording_audio_status()'s payload.
type AudioStatusView struct {
	CaptureSystemAudio     bool
	CaptureMicrophoneAudio bool
	SystemDeviceName       string
	MicDeviceName          string
}

// Commands is the full logical command surface of spec §6, one seam a
// transport adapter (stdin/stdout JSON-lines, or any other framing)
// dispatches against instead of wiring every collaborator by hand.
type Commands interface {
	IsCaptureSupported() bool
	GetTargets() ([]target.Target, error)
	GetAudioInputDevices() ([]string, error)
	GetVideoEncoderCapabilities(ctx context.Context) diagnose.EncoderCapabilities
	GetRecordingAudioStatus() AudioStatusView
	SetGlobalShortcuts(bindings []shortcut.Binding) error
	StartRecording(ctx context.Context, cfg config.SessionConfig) error
	UpdateRecordingAudioCapture(systemEnabled, micEnabled bool) error
	PauseRecording() error
	ResumeRecording() error
	StopRecording(ctx context.Context) error
	CancelRecording(ctx context.Context) error
	GetRecordingStatus() Snapshot
	SelectRegionNative(t *target.Target) (*target.Region, error)
}

// Host implements Commands, composing the Capture Manager with the
// collaborators it has no reason to depend on directly: the shortcut
// watcher, the region selector, and the encoder-capability cache. The
// composition root (cmd/capturist-host) constructs exactly one Host.
type Host struct {
	Manager  *Manager
	Provider target.Provider
	Status   *status.Status
	Caps     *diagnose.CapabilityCache
	Watcher  shortcut.Watcher
	Selector region.Selector

	// OnShortcutTriggered receives each action as soon as the watcher
	// fires it, so the composition root can emit the
	// global-shortcut-triggered event without Host depending on a
	// transport.
	OnShortcutTriggered func(shortcut.Action)

	lastAudioRequest config.AudioConfig
}

// IsCaptureSupported reports whether the Screen Provider backend on
// this platform is the real implementation rather than the stub.
func (h *Host) IsCaptureSupported() bool { return h.Provider.IsSupported() }

// GetTargets delegates to the Capture Manager.
func (h *Host) GetTargets() ([]target.Target, error) { return h.Manager.GetTargets() }

// GetAudioInputDevices enumerates active WASAPI capture endpoints.
func (h *Host) GetAudioInputDevices() ([]string, error) { return audiocap.EnumerateInputDevices() }

// GetVideoEncoderCapabilities returns the cached per-process probe.
func (h *Host) GetVideoEncoderCapabilities(ctx context.Context) diagnose.EncoderCapabilities {
	return h.Caps.Get(ctx)
}

// GetRecordingAudioStatus reports the live per-endpoint enablement of
// the active session, or the last requested configuration when idle.
func (h *Host) GetRecordingAudioStatus() AudioStatusView {
	view := AudioStatusView{
		CaptureSystemAudio:     h.lastAudioRequest.CaptureSystemAudio,
		CaptureMicrophoneAudio: h.lastAudioRequest.CaptureMicrophoneAudio,
	}
	for _, live := range h.Manager.LiveAudioStatus() {
		switch live.Endpoint {
		case audiocap.EndpointSystem:
			view.CaptureSystemAudio = live.Enabled
			view.SystemDeviceName = live.Name
		case audiocap.EndpointMicrophone:
			view.CaptureMicrophoneAudio = live.Enabled
			view.MicDeviceName = live.Name
		}
	}
	return view
}

// SetGlobalShortcuts restarts the shortcut watcher against the new
// binding set, per set_global_shortcuts.
func (h *Host) SetGlobalShortcuts(bindings []shortcut.Binding) error {
	h.Watcher.Stop()
	if len(bindings) == 0 {
		return nil
	}
	return h.Watcher.Start(bindings, func(a shortcut.Action) {
		if h.OnShortcutTriggered != nil {
			h.OnShortcutTriggered(a)
		}
	})
}

// StartRecording starts a new session, remembering the requested audio
// configuration for GetRecordingAudioStatus while idle.
func (h *Host) StartRecording(ctx context.Context, cfg config.SessionConfig) error {
	h.lastAudioRequest = cfg.Audio
	return h.Manager.Start(ctx, cfg)
}

// UpdateRecordingAudioCapture flips the live enable flags on the
// active session's two tracks.
func (h *Host) UpdateRecordingAudioCapture(systemEnabled, micEnabled bool) error {
	h.lastAudioRequest.CaptureSystemAudio = systemEnabled
	h.lastAudioRequest.CaptureMicrophoneAudio = micEnabled
	errSys := h.Manager.SetAudioEnabled(audiocap.EndpointSystem, systemEnabled)
	errMic := h.Manager.SetAudioEnabled(audiocap.EndpointMicrophone, micEnabled)
	if errSys != nil {
		return errSys
	}
	return errMic
}

func (h *Host) PauseRecording() error                      { return h.Manager.Pause() }
func (h *Host) ResumeRecording() error                     { return h.Manager.Resume() }
func (h *Host) StopRecording(ctx context.Context) error     { return h.Manager.Stop(ctx) }
func (h *Host) CancelRecording(ctx context.Context) error   { return h.Manager.Cancel(ctx) }
func (h *Host) GetRecordingStatus() Snapshot                { return h.Manager.Snapshot() }

// SelectRegionNative invokes the modal overlay selector and translates
// the result into the chosen target's local coordinate space. A nil t
// resolves to the primary monitor.
func (h *Host) SelectRegionNative(t *target.Target) (*target.Region, error) {
	chosen, err := h.resolveTarget(t)
	if err != nil {
		return nil, err
	}

	r, err := h.Selector.Select()
	if err != nil {
		if err == region.ErrCancelled {
			return nil, nil
		}
		return nil, err
	}

	reg, err := region.TranslateToTarget(r, chosen, 0, 0)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (h *Host) resolveTarget(t *target.Target) (target.Target, error) {
	if t != nil {
		return *t, nil
	}
	targets, err := h.Manager.GetTargets()
	if err != nil {
		return target.Target{}, err
	}
	for _, cand := range targets {
		if cand.Kind == target.KindMonitor && cand.Primary {
			return cand, nil
		}
	}
	if len(targets) > 0 {
		return targets[0], nil
	}
	return target.Target{}, region.ErrCancelled
}

var _ Commands = (*Host)(nil)
