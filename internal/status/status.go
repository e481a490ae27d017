// SPDX-License-Identifier: MIT

// Package status implements the Live Status service (C10): process-
// wide snapshots of the encoder label, the processing flag, and audio
// enablement/device names. Spec §9 reshapes the original's scattered
// process-wide singletons into one small service injected into the
// Capture Manager and initialized once at application boot.
package status

import "sync"

// AudioStatus mirrors the recording audio status command payload.
type AudioStatus struct {
	CaptureSystemAudio    bool
	CaptureMicrophoneAudio bool
	SystemDeviceName      string
	MicDeviceName         string
}

// Status is the process-wide live-status service. The zero value is
// ready to use; construct exactly one instance at application boot
// and inject it into every component that reports or reads status.
type Status struct {
	mu sync.RWMutex

	encoderLabel string // "" until the encoder has actually opened
	processing   int32  // re-entrant counter; >0 while a finalize is running
	audio        AudioStatus
}

// New constructs an empty Status service.
func New() *Status { return &Status{} }

// SetEncoderLabel is called exactly when the encoder has successfully
// opened (never earlier, so the UI reflects the actual backend, not
// the user's preference) — spec §5.
func (s *Status) SetEncoderLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoderLabel = label
}

// ClearEncoderLabel is called exactly when the session terminates.
func (s *Status) ClearEncoderLabel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoderLabel = ""
}

// EncoderLabel returns the current backend label, or "" if no encoder
// is open.
func (s *Status) EncoderLabel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encoderLabel
}

// BeginProcessing marks the start of a post-session finalize (the mux
// stage). Re-entrant: pair every call with EndProcessing.
func (s *Status) BeginProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing++
}

// EndProcessing marks the end of a finalize.
func (s *Status) EndProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing > 0 {
		s.processing--
	}
}

// IsProcessing reports whether any finalize is currently running.
func (s *Status) IsProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing > 0
}

// SetAudioStatus updates the published audio enablement/device names.
func (s *Status) SetAudioStatus(a AudioStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = a
}

// AudioStatus returns the current audio status snapshot.
func (s *Status) AudioStatus() AudioStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audio
}
