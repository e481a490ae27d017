// SPDX-License-Identifier: MIT

// Package capturerun implements the Capture Runtime: the producer
// thread bound to a chosen target and cadence, the admission-gate
// call sequence per incoming surface, and crop application.
package capturerun

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/frame"
	"github.com/xmunder/capturist/internal/target"
	"github.com/xmunder/capturist/internal/util"
)

// Surface is one image delivered by the OS graphics-capture API, prior
// to admission and crop. A Capturer may deliver CPU bytes, a GPU
// texture, or both; TimestampMS must be monotonically non-decreasing
// within a session.
type Surface struct {
	Width       int
	Height      int
	RowStride   int
	Data        []byte // nil if this delivery is GPU-only
	Texture     uintptr
	Releaser    frame.TextureReleaser // non-nil iff Texture != 0
	TimestampMS int64
}

// Capturer drives the platform graphics-capture API, pushing surfaces
// onto out at its own cadence until ctx is done or it stops itself
// (e.g. the target window closed). Returning a non-nil error marks the
// session as runtime-finished with that error.
type Capturer interface {
	Run(ctx context.Context, out chan<- Surface) error
}

// Sink receives the callbacks the Capture Runtime invokes for every
// admitted or dropped frame — the single owned object spec §9 asks
// for in place of several shared-ownership callback objects.
type Sink interface {
	ShouldAcceptFrame() (bool, error)
	OnFrameDropped()
	OnFrameArrived(*frame.RawFrame) error
}

// GPUOptions controls when the runtime prefers to emit a GPU-only
// frame instead of mapping to CPU bytes, per spec §4.3 step 3.
type GPUOptions struct {
	Preferred           bool
	HasCrop             bool
	CodecIsVP9          bool
	EncoderPreference   string // "nvenc" | "amf" | "qsv" | others
	ExperimentalEnabled bool
}

func (o GPUOptions) eligible() bool {
	if !o.Preferred || o.HasCrop || o.CodecIsVP9 || !o.ExperimentalEnabled {
		return false
	}
	switch o.EncoderPreference {
	case "nvenc", "amf", "qsv":
		return true
	default:
		return false
	}
}

// Runtime is the Capture Runtime (C3).
type Runtime struct {
	target target.Target
	region *target.Region
	cap    Capturer
	sink   Sink
	gpu    GPUOptions

	paused   atomic.Bool
	finished atomic.Bool
	frames   atomic.Uint64

	mu        sync.Mutex
	runErr    error
	cancel    context.CancelFunc
	surfaces  chan Surface
	producerDone chan struct{}
	loopDone  chan struct{}
}

// New constructs a Runtime bound to target/region/sink; region is nil
// for an uncropped capture.
func New(t target.Target, region *target.Region, cap Capturer, sink Sink, gpu GPUOptions) *Runtime {
	return &Runtime{
		target:       t,
		region:       region,
		cap:          cap,
		sink:         sink,
		gpu:          gpu,
		surfaces:     make(chan Surface, 1),
		producerDone: make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
}

// Start launches the producer and the admission/crop loop.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	util.SafeGo("capture-producer", nil, func() {
		defer close(r.producerDone)
		if err := r.cap.Run(ctx, r.surfaces); err != nil {
			r.setRunErr(capterr.Wrap(capterr.KindRuntime, err, "capture producer"))
		}
		r.finished.Store(true)
		close(r.surfaces)
	}, nil)

	util.SafeGo("capture-admission-loop", nil, func() {
		defer close(r.loopDone)
		for s := range r.surfaces {
			r.handleSurface(s)
		}
	}, nil)
}

func (r *Runtime) setRunErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runErr == nil {
		r.runErr = err
	}
}

// RunErr returns the first fatal error recorded by the runtime, if any.
func (r *Runtime) RunErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

func (r *Runtime) handleSurface(s Surface) {
	// Step 1: paused frames are dropped silently, without touching
	// admission or drop accounting.
	if r.paused.Load() {
		return
	}

	// Step 2: admission gate.
	accept, err := r.sink.ShouldAcceptFrame()
	if err != nil {
		r.setRunErr(capterr.Wrap(capterr.KindRuntime, err, "admission gate"))
		r.finished.Store(true)
		return
	}
	if !accept {
		r.sink.OnFrameDropped()
		return
	}

	var rf *frame.RawFrame
	if r.region == nil && r.gpu.eligible() && s.Texture != 0 {
		// Step 3: GPU-only frame, one borrowed reference taken over.
		gf, gerr := frame.NewGPUFrame(s.Width, s.Height, s.Texture, s.Releaser)
		if gerr != nil {
			r.setRunErr(capterr.Wrap(capterr.KindRuntime, gerr, "construct GPU frame"))
			r.finished.Store(true)
			return
		}
		rf = &frame.RawFrame{GPU: gf, TimestampMS: s.TimestampMS}
	} else {
		// Step 4: map/copy to CPU bytes, honoring crop if present.
		cpu, cerr := toCPUFrame(s, r.region, r.target)
		if cerr != nil {
			r.setRunErr(capterr.Wrap(capterr.KindRuntime, cerr, "crop/copy surface"))
			r.finished.Store(true)
			return
		}
		rf = &frame.RawFrame{CPU: cpu, TimestampMS: s.TimestampMS}
	}

	r.frames.Add(1)

	// Step 5: delivery.
	if err := r.sink.OnFrameArrived(rf); err != nil {
		r.setRunErr(capterr.Wrap(capterr.KindRuntime, err, "frame arrival"))
		r.finished.Store(true)
	}
}

// toCPUFrame copies s into a packed BGRA buffer, applying the crop
// clamp rule from spec §4.3 when region is non-nil.
func toCPUFrame(s Surface, region *target.Region, t target.Target) (*frame.CPUFrame, error) {
	if s.Data == nil {
		return nil, fmt.Errorf("capturerun: CPU path requires surface bytes")
	}
	x0, y0, w, h := 0, 0, s.Width, s.Height
	if region != nil {
		var err error
		x0, y0, w, h, err = clampCrop(*region, s.Width, s.Height)
		if err != nil {
			return nil, err
		}
	}
	dstStride := w * 4
	dst := make([]byte, h*dstStride)
	for row := 0; row < h; row++ {
		srcOff := (y0+row)*s.RowStride + x0*4
		dstOff := row * dstStride
		copy(dst[dstOff:dstOff+dstStride], s.Data[srcOff:srcOff+dstStride])
	}
	return &frame.CPUFrame{Width: w, Height: h, RowStride: dstStride, Data: dst}, nil
}

// clampCrop implements spec §4.3's crop-clamping algorithm: start =
// min(origin, dim-1); end = min(origin+size, dim); fails if the
// resulting intersection is empty.
func clampCrop(r target.Region, frameW, frameH int) (x0, y0, w, h int, err error) {
	clampStart := func(origin, dim int) int {
		if origin > dim-1 {
			return dim - 1
		}
		if origin < 0 {
			return 0
		}
		return origin
	}
	clampEnd := func(origin, size, dim int) int {
		end := origin + size
		if end > dim {
			return dim
		}
		return end
	}

	x0 = clampStart(r.X, frameW)
	y0 = clampStart(r.Y, frameH)
	x1 := clampEnd(r.X, r.Width, frameW)
	y1 := clampEnd(r.Y, r.Height, frameH)
	w = x1 - x0
	h = y1 - y0
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, fmt.Errorf("capturerun: crop %+v does not intersect frame %dx%d", r, frameW, frameH)
	}
	return x0, y0, w, h, nil
}

// Pause drops future frames silently until Resume.
func (r *Runtime) Pause() { r.paused.Store(true) }

// Resume resumes frame delivery.
func (r *Runtime) Resume() { r.paused.Store(false) }

// IsFinished reports whether the producer has stopped on its own
// (error or target closed) without an explicit Stop call.
func (r *Runtime) IsFinished() bool { return r.finished.Load() }

// Stop sends a cooperative stop to the producer, joins both the
// producer and the admission loop, then invokes onSessionFinished
// exactly once. Both failure sources are merged per spec §4.3's
// composite-error rule. Returns the total number of frames admitted.
func (r *Runtime) Stop(onSessionFinished func() error) (uint64, error) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	<-r.producerDone
	<-r.loopDone

	var finishErr error
	if onSessionFinished != nil {
		finishErr = onSessionFinished()
	}

	merged := capterr.Merge(capterr.KindRuntime, r.RunErr(), finishErr)
	return r.frames.Load(), merged
}

// Wait blocks until the producer and admission loop have both exited,
// without invoking the session-finished hook, and returns the frame
// count observed so far.
func (r *Runtime) Wait() uint64 {
	<-r.producerDone
	<-r.loopDone
	return r.frames.Load()
}
