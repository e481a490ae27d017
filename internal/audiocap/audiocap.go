// SPDX-License-Identifier: MIT

// Package audiocap implements the Audio Capture Service (C6): one
// worker per active WASAPI endpoint writing a WAV side-file, live
// enable/disable control, and first-enable delay tracking.
package audiocap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/util"
)

// Endpoint identifies which audio source a Track captures.
type Endpoint int

const (
	EndpointSystem Endpoint = iota
	EndpointMicrophone
)

func (e Endpoint) String() string {
	if e == EndpointSystem {
		return "system"
	}
	return "microphone"
}

// Packet is one delivered audio buffer from the platform capture
// client. Silent/Data==nil packets are written as equivalent-length
// zeros per spec §4.6.
type Packet struct {
	Data   []byte
	Silent bool
}

// Client abstracts the platform WASAPI capture client: activation,
// packet polling, and shutdown. A real Windows implementation lives
// behind a build tag; see client_windows.go.
type Client interface {
	// Open activates the audio client in shared mode with the spec's
	// 1-second ring buffer.
	Open() error
	// Next blocks up to a short interval and returns the next packet,
	// or ok=false if none was available (caller sleeps 5ms and retries).
	Next() (p Packet, ok bool, err error)
	Close() error
}

// WAVWriter abstracts the exclusive WAV side-file writer so tests can
// substitute an in-memory sink.
type WAVWriter interface {
	WriteSamples(data []byte) error
	Close() error // patches RIFF/data chunk sizes on close
}

// Track is one audio endpoint's live state: the one-shot
// first-enabled timestamp and the live enable flag, both safe for
// concurrent access from the worker goroutine and the live-control
// API.
type Track struct {
	Endpoint Endpoint
	Name     string

	enabled        atomic.Bool
	everEnabled    atomic.Bool
	firstEnabledAt atomic.Int64 // ms since session start; valid iff everEnabled
}

// NewTrack constructs a Track starting disabled.
func NewTrack(ep Endpoint, name string) *Track {
	return &Track{Endpoint: ep, Name: name}
}

// SetEnabled flips the live enable flag. Grounded on spec §4.6/§9:
// "a message-passing contract, not shared mutability" — callers go
// through this method rather than touching the atomics directly.
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Enabled reports the current live-enable state.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// EverEnabled reports whether the track has ever been enabled this
// session.
func (t *Track) EverEnabled() bool { return t.everEnabled.Load() }

// FirstEnabledAtMS returns the recorded first-enable offset; only
// meaningful when EverEnabled is true.
func (t *Track) FirstEnabledAtMS() int64 { return t.firstEnabledAt.Load() }

// observe performs the spec §4.6 per-buffer decision atomically and
// returns the bytes that should be written (verbatim, zeros, or
// nothing if the track has never been enabled).
func (t *Track) observe(sessionStart time.Time, p Packet) []byte {
	if t.enabled.Load() {
		if t.everEnabled.CompareAndSwap(false, true) {
			t.firstEnabledAt.Store(time.Since(sessionStart).Milliseconds())
		}
	}
	if !t.everEnabled.Load() {
		return nil
	}
	if !t.enabled.Load() || p.Silent || p.Data == nil {
		return make([]byte, len(p.Data))
	}
	return p.Data
}

// Worker runs one endpoint's capture loop: poll, decide, write.
type Worker struct {
	track        *Track
	client       Client
	writer       WAVWriter
	sessionStart time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	err    error
}

// NewWorker constructs a Worker bound to one endpoint.
func NewWorker(track *Track, client Client, writer WAVWriter, sessionStart time.Time) *Worker {
	return &Worker{
		track:        track,
		client:       client,
		writer:       writer,
		sessionStart: sessionStart,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start opens the client and launches the capture loop goroutine.
func (w *Worker) Start() error {
	if err := w.client.Open(); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: open %s endpoint", w.track.Endpoint)
	}
	util.SafeGo("audiocap-worker-"+w.track.Endpoint.String(), nil, w.run, nil)
	return nil
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		p, ok, err := w.client.Next()
		if err != nil {
			w.setErr(capterr.Wrap(capterr.KindRuntime, err, "audiocap: %s poll", w.track.Endpoint))
			return
		}
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		data := w.track.observe(w.sessionStart, p)
		if data == nil {
			continue
		}
		if err := w.writer.WriteSamples(data); err != nil {
			w.setErr(capterr.Wrap(capterr.KindRuntime, err, "audiocap: %s write", w.track.Endpoint))
			return
		}
	}
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Stop signals the worker, joins it, closes the client and the
// writer, and returns the first recorded error (from either source).
func (w *Worker) Stop() error {
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	workerErr := w.err
	w.mu.Unlock()

	closeErr := w.writer.Close()
	clientErr := w.client.Close()

	return capterr.Merge(capterr.KindRuntime, workerErr, capterr.Merge(capterr.KindRuntime, closeErr, clientErr))
}
