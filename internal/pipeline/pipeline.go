// SPDX-License-Identifier: MIT

// Package pipeline implements the Video Pipeline Queue: a fixed-capacity
// single-producer/single-consumer channel between the Capture Runtime
// and the Video Encoder Worker, with an explicit occupancy counter so
// admission can be checked without racing the channel itself.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xmunder/capturist/internal/frame"
)

// Capacity is the fixed queue depth; six frames absorbs a brief encoder
// stall without the capture thread blocking.
const Capacity = 6

// item is one queue entry: an admitted frame, or, with stop set, the
// marker sent to unblock the consumer on session end; capture never
// produces a stop item.
type item struct {
	frame *frame.RawFrame
	stop  bool
}

// Consume is supplied by the caller and processes one admitted frame.
// A non-nil error is recorded as the worker's fatal error and stops
// the consumer loop.
type Consume func(*frame.RawFrame) error

// Pipeline is the single owned object whose methods serve as the
// frame-admission, enqueue and worker-error callbacks the Capture
// Runtime holds typed handles to — replacing the shared-ownership
// callback objects of a naively ported design with one value.
type Pipeline struct {
	ch chan item

	queued  int32 // atomic; occupancy, acquire/release
	dropped int64 // atomic; relaxed

	mu       sync.Mutex
	workerErr error
	done     chan struct{}

	consume Consume
}

// New constructs a Pipeline bound to consume, ready for Start.
func New(consume Consume) *Pipeline {
	return &Pipeline{
		ch:      make(chan item, Capacity),
		done:    make(chan struct{}),
		consume: consume,
	}
}

// Start launches the consumer goroutine. Call once per Pipeline.
func (p *Pipeline) Start() {
	go p.run()
}

func (p *Pipeline) run() {
	defer close(p.done)
	for it := range p.ch {
		atomic.AddInt32(&p.queued, -1)
		if it.stop {
			return
		}
		if err := p.consume(it.frame); err != nil {
			p.setWorkerErr(fmt.Errorf("pipeline: consumer: %w", err))
			return
		}
	}
}

func (p *Pipeline) setWorkerErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workerErr == nil {
		p.workerErr = err
	}
}

// WorkerErr returns the first error recorded by the consumer, if any.
func (p *Pipeline) WorkerErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerErr
}

// ShouldAcceptFrame is the admission gate: it fails fast if the worker
// already recorded a fatal error, otherwise admits while queued < capacity.
func (p *Pipeline) ShouldAcceptFrame() (bool, error) {
	if err := p.WorkerErr(); err != nil {
		return false, err
	}
	return atomic.LoadInt32(&p.queued) < Capacity, nil
}

// ErrDisconnected is surfaced when Enqueue is called after the
// consumer has already exited without recording a worker error (a
// close race rather than a processing failure).
var ErrDisconnected = errors.New("pipeline: consumer disconnected")

// Enqueue admits a frame. It increments queued before attempting
// delivery so ShouldAcceptFrame's capacity check and the actual send
// cannot race into an over-full channel; on a full channel it silently
// drops the frame (capture must never block on encode), and on a
// closed/disconnected consumer it surfaces the worker error.
func (p *Pipeline) Enqueue(f *frame.RawFrame) error {
	atomic.AddInt32(&p.queued, 1)
	select {
	case p.ch <- item{frame: f}:
		return nil
	case <-p.done:
		atomic.AddInt32(&p.queued, -1)
		f.Release()
		if err := p.WorkerErr(); err != nil {
			return err
		}
		return ErrDisconnected
	default:
		atomic.AddInt32(&p.queued, -1)
		atomic.AddInt64(&p.dropped, 1)
		f.Release()
		return nil
	}
}

// Queued returns the current occupancy.
func (p *Pipeline) Queued() int32 { return atomic.LoadInt32(&p.queued) }

// Dropped returns the accumulated drop count.
func (p *Pipeline) Dropped() int64 { return atomic.LoadInt64(&p.dropped) }

// Stop sends the Stop sentinel and waits for the consumer to exit,
// returning the consumer's recorded error if any. Safe to call once;
// a second call would panic on the closed channel, so callers gate it
// through the Capture Manager's single stop path.
func (p *Pipeline) Stop() error {
	p.ch <- item{stop: true}
	close(p.ch)
	<-p.done
	return p.WorkerErr()
}
