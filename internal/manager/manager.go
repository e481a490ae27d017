// SPDX-License-Identifier: MIT

// Package manager implements the Capture Manager (C8): the session
// state machine and dependency-injection point that coordinates the
// Screen Provider, Capture Runtime, Video Pipeline Queue, Video
// Encoder Worker, Audio Capture Service, and Mux Stage.
package manager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xmunder/capturist/internal/audiocap"
	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/capturerun"
	"github.com/xmunder/capturist/internal/config"
	"github.com/xmunder/capturist/internal/frame"
	"github.com/xmunder/capturist/internal/mux"
	"github.com/xmunder/capturist/internal/outputpath"
	"github.com/xmunder/capturist/internal/pipeline"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/target"
	"github.com/xmunder/capturist/internal/util"
	"github.com/xmunder/capturist/internal/videoenc"
)

// State is the ActiveSession state, per spec §4.1's state machine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// CapturerFactory constructs the platform producer bound to one
// target/region pair. The concrete OS graphics-capture backend is
// supplied by the composition root; Manager only depends on the
// capturerun.Capturer interface.
type CapturerFactory func(t target.Target, region *target.Region) (capturerun.Capturer, error)

// Snapshot is the read-only session view Manager.Snapshot returns.
type Snapshot struct {
	State         State
	ElapsedMS     int64
	LastError     error
	EncoderLabel  string
	IsProcessing  bool
}

// activeSession holds everything the running/paused/stopped session
// needs torn down or reported on; cleared lazily on the next Start.
type activeSession struct {
	state        State
	elapsedMS    int64
	lastResumeAt time.Time
	lastErr      error

	runtime  *capturerun.Runtime
	pipeline *pipeline.Pipeline
	encoder  *videoenc.Worker
	audio    *audiocap.Service
	out      *outputpath.Session
	ffmpegBin string
	cfg      config.SessionConfig
}

// Manager is the Capture Manager (C8). Guarded by a single mutex per
// spec §5: held only for the duration of one operation, never across
// blocking I/O.
type Manager struct {
	mu        sync.Mutex
	provider  target.Provider
	status    *status.Status
	ffmpegBin string
	ffmpegDir string
	factory   CapturerFactory

	// experimentalD3D11Input gates CAPTURIST_EXPERIMENTAL_D3D11_INPUT:
	// the GPU-texture capture/encode input pipeline, off by default.
	experimentalD3D11Input bool
	// mp4Faststart gates CAPTURIST_MP4_FASTSTART: +faststart on MP4 mux,
	// off by default.
	mp4Faststart bool

	// resources tracks per-session temp directories and the mux
	// ffmpeg child process across the Manager's lifetime, for leak
	// diagnosis; see Start/Stop.
	resources *util.ResourceTracker

	active *activeSession
}

// New constructs a Manager. ffmpegBin is the external ffmpeg binary
// used by the Mux Stage; ffmpegDir is where the encoder's temp
// directory is allocated alongside it (falling back to the OS temp
// dir, see internal/outputpath). experimentalD3D11Input and
// mp4Faststart mirror CAPTURIST_EXPERIMENTAL_D3D11_INPUT and
// CAPTURIST_MP4_FASTSTART (spec §6); the composition root reads them
// via EnvFlagEnabled.
func New(provider target.Provider, st *status.Status, factory CapturerFactory, ffmpegBin, ffmpegDir string, experimentalD3D11Input, mp4Faststart bool) *Manager {
	return &Manager{
		provider:               provider,
		status:                 st,
		factory:                factory,
		ffmpegBin:              ffmpegBin,
		ffmpegDir:              ffmpegDir,
		experimentalD3D11Input: experimentalD3D11Input,
		mp4Faststart:           mp4Faststart,
		resources:              util.NewResourceTracker(),
	}
}

// EnvFlagEnabled reports whether raw (an environment variable value)
// enables a boolean flag per spec §6's "1|true|yes" convention.
func EnvFlagEnabled(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// GetTargets returns the sorted target list from the Screen Provider.
func (m *Manager) GetTargets() ([]target.Target, error) {
	targets, err := m.provider.GetTargets()
	if err != nil {
		return nil, capterr.Wrap(capterr.KindResource, err, "manager: get targets")
	}
	target.Sort(targets)
	return targets, nil
}

// Start begins a new session from cfg. Fails if a session already
// exists (and is not Stopped), if cfg fails validation, if the target
// is missing, or if the crop does not fit the target.
func (m *Manager) Start(ctx context.Context, cfg config.SessionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.state != StateStopped {
		return capterr.New(capterr.KindConfiguration, "manager: session already exists (state=%s)", m.active.state)
	}
	m.active = nil // lazily clear a Stopped session

	if err := cfg.Validate(); err != nil {
		return capterr.Wrap(capterr.KindConfiguration, err, "manager: invalid session config")
	}

	targets, err := m.provider.GetTargets()
	if err != nil {
		return capterr.Wrap(capterr.KindResource, err, "manager: get targets")
	}
	var chosen target.Target
	found := false
	for _, t := range targets {
		if int32(t.ID) == cfg.TargetID {
			chosen, found = t, true
			break
		}
	}
	if !found {
		return capterr.New(capterr.KindConfiguration, "manager: target id %d not found", cfg.TargetID)
	}

	var region *target.Region
	if cfg.Crop != nil {
		r := target.Region{X: cfg.Crop.X, Y: cfg.Crop.Y, Width: cfg.Crop.Width, Height: cfg.Crop.Height}
		if err := r.Validate(chosen); err != nil {
			return capterr.Wrap(capterr.KindConfiguration, err, "manager: invalid crop")
		}
		region = &r
	}

	outSession, err := outputpath.NewSession(cfg.Encoder.OutputPath, m.ffmpegDir)
	if err != nil {
		return capterr.Wrap(capterr.KindResource, err, "manager: allocate output session")
	}
	m.resources.TrackResource(outSession.TempDir, outSession)

	encCfg := videoenc.Config{
		OutputPath:    outSession.TempVideo,
		Container:     toVideoencContainer(cfg.Encoder.Container),
		Codec:         toVideoencCodec(cfg.Encoder.Codec),
		CodecExplicit: cfg.Encoder.Codec != "",
		Preference:    toVideoencPreference(cfg.Encoder.Preference),
		FPS:           cfg.FPS,
		CRF:           cfg.Encoder.CRF,
		SpeedPreset:   cfg.Encoder.SpeedPreset,
		QualityMode:   toVideoencQuality(cfg.Encoder.QualityMode),
		GPUInput:      m.experimentalD3D11Input,
	}
	encoder := videoenc.NewWorker(encCfg, func(backendLabel, _ string) {
		m.status.SetEncoderLabel(backendLabel)
	}, m.status.ClearEncoderLabel)

	pipe := pipeline.New(encoder.OnFrame)

	sessionStart := time.Now()
	var specs []audiocap.EndpointSpec
	if cfg.Audio.CaptureSystemAudio {
		path := filepath.Join(outSession.TempDir, "system.wav")
		specs = append(specs, audiocap.EndpointSpec{Endpoint: audiocap.EndpointSystem, Name: "System", Path: path, Factory: audiocap.NewEndpointFactory(audiocap.EndpointSystem)})
	}
	if cfg.Audio.CaptureMicrophoneAudio {
		path := filepath.Join(outSession.TempDir, "microphone.wav")
		specs = append(specs, audiocap.EndpointSpec{Endpoint: audiocap.EndpointMicrophone, Name: "Microphone", Path: path, Factory: audiocap.NewEndpointFactory(audiocap.EndpointMicrophone)})
	}
	audioSvc, err := audiocap.Start(sessionStart, specs)
	if err != nil {
		return capterr.Wrap(capterr.KindResource, err, "manager: start audio capture")
	}
	if cfg.Audio.CaptureSystemAudio {
		audioSvc.SetEnabled(audiocap.EndpointSystem, true)
	}
	if cfg.Audio.CaptureMicrophoneAudio {
		audioSvc.SetEnabled(audiocap.EndpointMicrophone, true)
	}

	capturer, err := m.factory(chosen, region)
	if err != nil {
		_ = audioSvc.Stop()
		return capterr.Wrap(capterr.KindResource, err, "manager: construct capturer")
	}

	gpu := capturerun.GPUOptions{
		Preferred:           cfg.Encoder.Preference != config.PreferenceSoftware,
		HasCrop:             region != nil,
		CodecIsVP9:          cfg.Encoder.Codec == config.CodecVP9,
		EncoderPreference:   string(cfg.Encoder.Preference),
		ExperimentalEnabled: m.experimentalD3D11Input,
	}
	sink := &pipelineSink{pipe: pipe}
	runtime := capturerun.New(chosen, region, capturer, sink, gpu)

	pipe.Start()
	runtime.Start(ctx)

	m.active = &activeSession{
		state:        StateRunning,
		lastResumeAt: sessionStart,
		runtime:      runtime,
		pipeline:     pipe,
		encoder:      encoder,
		audio:        audioSvc,
		out:          outSession,
		ffmpegBin:    m.ffmpegBin,
		cfg:          cfg,
	}
	return nil
}

// pipelineSink adapts pipeline.Pipeline to capturerun.Sink.
type pipelineSink struct{ pipe *pipeline.Pipeline }

func (s *pipelineSink) ShouldAcceptFrame() (bool, error) { return s.pipe.ShouldAcceptFrame() }
func (s *pipelineSink) OnFrameDropped()                  {}
func (s *pipelineSink) OnFrameArrived(f *frame.RawFrame) error {
	return s.pipe.Enqueue(f)
}

// Pause transitions Running -> Paused, accumulating elapsed time.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil || a.state != StateRunning {
		return capterr.New(capterr.KindConfiguration, "manager: cannot pause from state=%s", m.stateOrIdle())
	}
	a.runtime.Pause()
	a.elapsedMS += time.Since(a.lastResumeAt).Milliseconds()
	a.state = StatePaused
	return nil
}

// Resume transitions Paused -> Running, refreshing last_resume_at.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil || a.state != StatePaused {
		return capterr.New(capterr.KindConfiguration, "manager: cannot resume from state=%s", m.stateOrIdle())
	}
	a.runtime.Resume()
	a.lastResumeAt = time.Now()
	a.state = StateRunning
	return nil
}

// Stop ends the session: drains the runtime, flushes and closes the
// encoder, stops audio workers, then runs the mux stage detached.
// Idempotent on an already-Stopped session.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	a := m.active
	if a == nil || a.state == StateStopped {
		m.mu.Unlock()
		return nil
	}
	if a.state == StateRunning {
		a.elapsedMS += time.Since(a.lastResumeAt).Milliseconds()
	}
	a.state = StateStopped
	a.lastResumeAt = time.Time{}
	m.mu.Unlock()

	_, stopErr := a.runtime.Stop(func() error {
		return capterr.Merge(capterr.KindRuntime, a.pipeline.Stop(), a.encoder.OnStop())
	})

	m.mu.Lock()
	a.lastErr = stopErr
	m.mu.Unlock()

	m.status.BeginProcessing()
	a.audio.FinalizeAndMuxDetached(ctx, func(ctx context.Context, job audiocap.MuxJob) error {
		defer m.status.EndProcessing()
		if audioStopErr := a.audio.Stop(); audioStopErr != nil {
			return audioStopErr
		}
		muxJob := mux.Job{
			FFmpegBin:         a.ffmpegBin,
			VideoTempPath:     a.out.TempVideo,
			FinalPath:         a.out.FinalPath,
			TempDir:           a.out.TempDir,
			Container:         toVideoencContainer(a.cfg.Encoder.Container),
			Tracks:            job.Tracks,
			TrackFirstEnabled: job.TrackFirstEnabled,
			QualityMode:       toVideoencQuality(a.cfg.Encoder.QualityMode),
			AudioSyncOffsetMS: mux.EnvAudioSyncOffsetMS(os.Getenv("CAPTURIST_AUDIO_SYNC_OFFSET_MS")),
			MP4Faststart:      m.mp4Faststart && a.cfg.Encoder.Container == config.ContainerMP4,
			Resources:         m.resources,
		}
		for i := range muxJob.Tracks {
			if muxJob.Tracks[i].Source == mux.SourceMicrophone {
				muxJob.Tracks[i].GainPct = a.cfg.Audio.MicrophoneGainPct
			}
		}
		muxErr := mux.Run(ctx, muxJob)
		if muxErr == nil {
			m.resources.UntrackResource(a.out.TempDir)
		}
		return muxErr
	}, func(err error) {
		m.mu.Lock()
		if err != nil {
			a.lastErr = capterr.Merge(capterr.KindFinalize, a.lastErr, err)
		}
		m.mu.Unlock()
	})

	return stopErr
}

// Cancel is Stop without waiting on the mux finalizer's outcome to be
// reported back as the call's own error; the finalizer still runs
// detached to completion.
func (m *Manager) Cancel(ctx context.Context) error {
	return m.Stop(ctx)
}

// SetAudioEnabled flips an endpoint's live enable flag on the active
// session's audio tracks, the update_recording_audio_capture command
// surface; returns a configuration error if no session is running.
func (m *Manager) SetAudioEnabled(ep audiocap.Endpoint, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.active
	if a == nil || a.state == StateStopped {
		return capterr.New(capterr.KindConfiguration, "manager: no active session to update audio capture on")
	}
	a.audio.SetEnabled(ep, enabled)
	return nil
}

// LiveAudioStatus reports the active session's per-track enablement,
// or an empty slice if no session is running.
func (m *Manager) LiveAudioStatus() []audiocap.LiveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	return m.active.audio.LiveAudioStatus()
}

// RefreshRuntimeState polls the runtime handle; if the producer
// finished on its own, transitions the session to Stopped and
// captures the terminal error, per spec §4.1.
func (m *Manager) RefreshRuntimeState(ctx context.Context) {
	m.mu.Lock()
	a := m.active
	if a == nil || (a.state != StateRunning && a.state != StatePaused) {
		m.mu.Unlock()
		return
	}
	finished := a.runtime.IsFinished()
	m.mu.Unlock()
	if finished {
		_ = m.Stop(ctx)
	}
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:        StateIdle,
		EncoderLabel: m.status.EncoderLabel(),
		IsProcessing: m.status.IsProcessing(),
	}
	a := m.active
	if a == nil {
		return snap
	}
	snap.State = a.state
	snap.LastError = a.lastErr
	elapsed := a.elapsedMS
	if a.state == StateRunning {
		elapsed += time.Since(a.lastResumeAt).Milliseconds()
	}
	snap.ElapsedMS = elapsed
	return snap
}

func (m *Manager) stateOrIdle() State {
	if m.active == nil {
		return StateIdle
	}
	return m.active.state
}

func toVideoencContainer(c config.Container) videoenc.Container {
	switch c {
	case config.ContainerMKV:
		return videoenc.ContainerMKV
	case config.ContainerWebM:
		return videoenc.ContainerWebM
	default:
		return videoenc.ContainerMP4
	}
}

func toVideoencCodec(c config.Codec) videoenc.Codec {
	switch c {
	case config.CodecH265:
		return videoenc.CodecH265
	case config.CodecVP9:
		return videoenc.CodecVP9
	default:
		return videoenc.CodecH264
	}
}

func toVideoencPreference(p config.EncoderPreference) videoenc.Preference {
	switch p {
	case config.PreferenceNVENC:
		return videoenc.PreferenceNVENC
	case config.PreferenceAMF:
		return videoenc.PreferenceAMF
	case config.PreferenceQSV:
		return videoenc.PreferenceQSV
	case config.PreferenceSoftware:
		return videoenc.PreferenceSoftware
	default:
		return videoenc.PreferenceAuto
	}
}

func toVideoencQuality(q config.QualityMode) videoenc.QualityMode {
	switch q {
	case config.QualityPerformance:
		return videoenc.QualityPerformance
	case config.QualityQuality:
		return videoenc.QualityQuality
	default:
		return videoenc.QualityBalanced
	}
}
