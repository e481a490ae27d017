// SPDX-License-Identifier: MIT

package audiocap

import (
	"context"
	"os"
	"time"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/mux"
	"github.com/xmunder/capturist/internal/util"
)

// wavHeaderBytes is the minimum size of a well-formed RIFF/WAVE
// header; a file no larger than this carries no audio samples.
const wavHeaderBytes = 44

// EndpointFactory constructs the platform Client+WAVWriter pair for
// one endpoint's side-file path. A real Windows implementation lives
// behind a build tag; tests substitute fakes.
type EndpointFactory func(path string) (Client, WAVWriter, error)

// EndpointSpec names one endpoint to capture and the WAV path it
// writes to.
type EndpointSpec struct {
	Endpoint Endpoint
	Name     string
	Path     string
	Factory  EndpointFactory
}

// Service is the Audio Capture Service (C6): owns zero, one, or two
// endpoint workers started in parallel with the video pipeline.
type Service struct {
	sessionStart time.Time
	workers      []*Worker
	tracks       []*Track
	specs        []EndpointSpec
}

// Start resolves up to two endpoints and launches a worker per
// endpoint, each responsible for its own COM initialization (the
// Windows clients call CoInitializeEx in Open and CoUninitialize in
// Close).
func Start(sessionStart time.Time, specs []EndpointSpec) (*Service, error) {
	s := &Service{sessionStart: sessionStart, specs: specs}
	for _, spec := range specs {
		client, writer, err := spec.Factory(spec.Path)
		if err != nil {
			s.stopStarted()
			return nil, capterr.Wrap(capterr.KindResource, err, "audiocap: construct %s endpoint", spec.Endpoint)
		}
		track := NewTrack(spec.Endpoint, spec.Name)
		worker := NewWorker(track, client, writer, sessionStart)
		if err := worker.Start(); err != nil {
			s.stopStarted()
			return nil, err
		}
		s.tracks = append(s.tracks, track)
		s.workers = append(s.workers, worker)
	}
	return s, nil
}

func (s *Service) stopStarted() {
	for _, w := range s.workers {
		_ = w.Stop()
	}
}

// SetEnabled flips the live enable flag for the named endpoint, the
// live-control API surface of spec §4.6 ("update_live_audio_capture").
func (s *Service) SetEnabled(ep Endpoint, enabled bool) {
	for _, t := range s.tracks {
		if t.Endpoint == ep {
			t.SetEnabled(enabled)
		}
	}
}

// LiveStatus reports each track's current enablement and name, the
// "get_live_audio_status" read.
type LiveStatus struct {
	Endpoint Endpoint
	Name     string
	Enabled  bool
}

// LiveAudioStatus returns the current per-track status snapshot.
func (s *Service) LiveAudioStatus() []LiveStatus {
	out := make([]LiveStatus, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = LiveStatus{Endpoint: t.Endpoint, Name: t.Name, Enabled: t.Enabled()}
	}
	return out
}

// Stop signals and joins every worker, collecting the first error.
func (s *Service) Stop() error {
	var merged error
	for _, w := range s.workers {
		merged = capterr.Merge(capterr.KindRuntime, merged, w.Stop())
	}
	return merged
}

// MuxJob is the typed value handed to the detached finalizer — spec
// §9's "hand the finalizer a typed MuxJob value type; do not share the
// audio service itself across threads".
type MuxJob struct {
	Tracks            []mux.Track
	TrackFirstEnabled []int
}

// FinalizeAndMuxDetached collects the tracks that were ever enabled
// and whose WAV file exceeds the bare header, builds a MuxJob, and
// invokes muxFn on a detached goroutine so the caller returns
// immediately (spec §4.6 finalize_and_mux_detached). onDone is called
// with the mux error, if any, once muxFn returns.
func (s *Service) FinalizeAndMuxDetached(ctx context.Context, muxFn func(context.Context, MuxJob) error, onDone func(error)) {
	job := s.collectMuxJob()
	util.SafeGo("audiocap-finalize", nil, func() {
		err := muxFn(ctx, job)
		if onDone != nil {
			onDone(err)
		}
	}, nil)
}

func (s *Service) collectMuxJob() MuxJob {
	var job MuxJob
	for _, t := range s.tracks {
		if !t.EverEnabled() {
			continue
		}
		spec := s.specFor(t.Endpoint)
		info, err := os.Stat(spec.Path)
		if err != nil || info.Size() <= wavHeaderBytes {
			continue
		}
		src := mux.SourceSystem
		if t.Endpoint == EndpointMicrophone {
			src = mux.SourceMicrophone
		}
		job.Tracks = append(job.Tracks, mux.Track{Path: spec.Path, Source: src, GainPct: 100})
		job.TrackFirstEnabled = append(job.TrackFirstEnabled, int(t.FirstEnabledAtMS()))
	}
	return job
}

func (s *Service) specFor(ep Endpoint) EndpointSpec {
	for _, sp := range s.specs {
		if sp.Endpoint == ep {
			return sp
		}
	}
	return EndpointSpec{}
}
