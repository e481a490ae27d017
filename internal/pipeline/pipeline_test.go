// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmunder/capturist/internal/frame"
)

func rawFrame(ts int64) *frame.RawFrame {
	return &frame.RawFrame{
		CPU:         &frame.CPUFrame{Width: 2, Height: 2, RowStride: 8, Data: make([]byte, 16)},
		TimestampMS: ts,
	}
}

func TestEnqueueAdmitsWithinCapacity(t *testing.T) {
	var mu sync.Mutex
	var consumed []int64
	release := make(chan struct{})

	p := New(func(f *frame.RawFrame) error {
		<-release // hold the consumer so the queue fills up
		mu.Lock()
		consumed = append(consumed, f.TimestampMS)
		mu.Unlock()
		return nil
	})
	p.Start()

	for i := 0; i < Capacity; i++ {
		ok, err := p.ShouldAcceptFrame()
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, p.Enqueue(rawFrame(int64(i))))
	}

	close(release)
	require.NoError(t, p.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, consumed, Capacity)
}

func TestEnqueueDropsOnOverflow(t *testing.T) {
	block := make(chan struct{})
	p := New(func(f *frame.RawFrame) error {
		<-block
		return nil
	})
	p.Start()

	// One frame occupies the consumer; Capacity more fill the channel.
	require.NoError(t, p.Enqueue(rawFrame(0)))
	time.Sleep(10 * time.Millisecond) // let the consumer pick it up

	for i := 0; i < Capacity; i++ {
		require.NoError(t, p.Enqueue(rawFrame(int64(i+1))))
	}

	// Queue is now at capacity; further frames must be dropped, not block.
	for i := 0; i < 14; i++ {
		require.NoError(t, p.Enqueue(rawFrame(int64(100+i))))
	}
	assert.LessOrEqual(t, p.Queued(), int32(Capacity))
	assert.GreaterOrEqual(t, p.Dropped(), int64(14))

	close(block)
	require.NoError(t, p.Stop())
}

func TestConsumerErrorRecordedAndStopsAdmission(t *testing.T) {
	boom := errors.New("boom")
	p := New(func(f *frame.RawFrame) error { return boom })
	p.Start()

	require.NoError(t, p.Enqueue(rawFrame(0)))
	require.Eventually(t, func() bool {
		return p.WorkerErr() != nil
	}, time.Second, time.Millisecond)

	ok, err := p.ShouldAcceptFrame()
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestStopIsIdempotentlySafeFromCaller(t *testing.T) {
	p := New(func(*frame.RawFrame) error { return nil })
	p.Start()
	require.NoError(t, p.Enqueue(rawFrame(0)))
	assert.NoError(t, p.Stop())
}
