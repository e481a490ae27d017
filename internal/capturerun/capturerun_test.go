// SPDX-License-Identifier: MIT

package capturerun

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmunder/capturist/internal/frame"
	"github.com/xmunder/capturist/internal/target"
)

// fakeCapturer pushes a fixed set of surfaces then blocks until ctx is
// cancelled, mirroring a real OS capture API that runs until stopped.
type fakeCapturer struct {
	surfaces []Surface
}

func (f *fakeCapturer) Run(ctx context.Context, out chan<- Surface) error {
	for _, s := range f.surfaces {
		select {
		case out <- s:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	arrived  []*frame.RawFrame
	dropped  int
	accept   bool
	acceptErr error
}

func (s *recordingSink) ShouldAcceptFrame() (bool, error) { return s.accept, s.acceptErr }
func (s *recordingSink) OnFrameDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}
func (s *recordingSink) OnFrameArrived(f *frame.RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arrived = append(s.arrived, f)
	return nil
}

func bgraSurface(w, h int, ts int64) Surface {
	stride := w * 4
	return Surface{Width: w, Height: h, RowStride: stride, Data: make([]byte, h*stride), TimestampMS: ts}
}

func TestRuntimeAdmitsAndCounts(t *testing.T) {
	cap := &fakeCapturer{surfaces: []Surface{bgraSurface(4, 4, 1), bgraSurface(4, 4, 2)}}
	sink := &recordingSink{accept: true}
	r := New(target.Target{Width: 4, Height: 4}, nil, cap, sink, GPUOptions{})

	r.Start(context.Background())
	count, err := r.Stop(func() error { return nil })
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Len(t, sink.arrived, 2)
	assert.Zero(t, sink.dropped)
}

func TestRuntimePausedFramesDroppedSilently(t *testing.T) {
	cap := &fakeCapturer{surfaces: []Surface{bgraSurface(4, 4, 1)}}
	sink := &recordingSink{accept: true}
	r := New(target.Target{Width: 4, Height: 4}, nil, cap, sink, GPUOptions{})
	r.Pause()
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	count, err := r.Stop(func() error { return nil })
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, sink.dropped, "paused frames skip drop accounting entirely")
}

func TestRuntimeDropsWhenNotAccepted(t *testing.T) {
	cap := &fakeCapturer{surfaces: []Surface{bgraSurface(4, 4, 1), bgraSurface(4, 4, 2)}}
	sink := &recordingSink{accept: false}
	r := New(target.Target{Width: 4, Height: 4}, nil, cap, sink, GPUOptions{})
	r.Start(context.Background())
	_, err := r.Stop(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, sink.dropped)
}

func TestRuntimeAdmissionErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	cap := &fakeCapturer{surfaces: []Surface{bgraSurface(4, 4, 1)}}
	sink := &recordingSink{acceptErr: boom}
	r := New(target.Target{Width: 4, Height: 4}, nil, cap, sink, GPUOptions{})
	r.Start(context.Background())
	_, err := r.Stop(func() error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestRuntimeStopReturnsFinishError(t *testing.T) {
	cap := &fakeCapturer{surfaces: nil}
	sink := &recordingSink{accept: true}
	r := New(target.Target{Width: 4, Height: 4}, nil, cap, sink, GPUOptions{})
	r.Start(context.Background())
	finishErr := errors.New("finalize failed")
	_, err := r.Stop(func() error { return finishErr })
	assert.ErrorIs(t, err, finishErr)
}

func TestCropClampsToIntersection(t *testing.T) {
	s := bgraSurface(10, 10, 1)
	for i := range s.Data {
		s.Data[i] = byte(i % 251)
	}
	region := target.Region{X: 8, Y: 8, Width: 5, Height: 5} // overruns a 10x10 frame
	cpu, err := toCPUFrame(s, &region, target.Target{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, cpu.Width)
	assert.Equal(t, 2, cpu.Height)
}

func TestCropEmptyIntersectionFails(t *testing.T) {
	s := bgraSurface(10, 10, 1)
	region := target.Region{X: -10, Y: -10, Width: 5, Height: 5} // ends before the frame starts
	_, err := toCPUFrame(s, &region, target.Target{Width: 10, Height: 10})
	assert.Error(t, err)
}

func TestRuntimeMonotonicFrameCount(t *testing.T) {
	var total atomic.Uint64
	cap := &fakeCapturer{surfaces: []Surface{bgraSurface(2, 2, 1), bgraSurface(2, 2, 2), bgraSurface(2, 2, 3)}}
	sink := &recordingSink{accept: true}
	r := New(target.Target{Width: 2, Height: 2}, nil, cap, sink, GPUOptions{})
	r.Start(context.Background())
	count, err := r.Stop(func() error { return nil })
	require.NoError(t, err)
	total.Store(count)
	assert.EqualValues(t, 3, total.Load())
}
