// SPDX-License-Identifier: MIT

// Package frame defines the raw frame descriptor handed from the
// capture runtime to the video encoder worker: either CPU bytes, an
// opaque GPU texture handle, or both, plus a monotonic timestamp.
package frame

import (
	"fmt"
	"sync/atomic"
)

// CPUFrame carries a tightly-packed or strided BGRA image.
type CPUFrame struct {
	Width      int
	Height     int
	RowStride  int // bytes per row; may exceed 4*Width due to GPU alignment
	Data       []byte
}

// Validate checks the CPU-variant invariant: data.len() >= height*row_stride.
func (f *CPUFrame) Validate() error {
	if f == nil {
		return nil
	}
	if f.RowStride < 4*f.Width {
		return fmt.Errorf("frame: row stride %d smaller than 4*width (%d)", f.RowStride, 4*f.Width)
	}
	need := f.Height * f.RowStride
	if len(f.Data) < need {
		return fmt.Errorf("frame: data length %d smaller than height*stride (%d)", len(f.Data), need)
	}
	return nil
}

// TextureReleaser releases exactly one reference on a GPU texture handle.
// Implementations back a real Direct3D11 2-D texture on Windows and are
// supplied by the capture backend with each surface
// (capturerun.Surface.Releaser).
type TextureReleaser interface {
	Release()
}

// GPUFrame carries an opaque Direct3D11 2-D texture handle. The frame
// owns exactly one reference on the underlying texture; Take transfers
// that ownership to the caller so a frame can be submitted to the
// encoder without a double release.
type GPUFrame struct {
	Width   int
	Height  int
	Texture uintptr // opaque D3D11 ID3D11Texture2D* (or 0 once taken)

	released int32 // atomic guard: release must run at most once
	releaser TextureReleaser
}

// NewGPUFrame wraps a texture pointer with exactly one owned reference,
// released by releaser.Release() at most once.
func NewGPUFrame(width, height int, texture uintptr, releaser TextureReleaser) (*GPUFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: GPU frame requires positive dimensions, got %dx%d", width, height)
	}
	return &GPUFrame{Width: width, Height: height, Texture: texture, releaser: releaser}, nil
}

// Take removes the texture pointer from the frame for submission to the
// encoder, transferring the single owned reference to the caller. A
// second call returns 0; callers must not release twice.
func (g *GPUFrame) Take() uintptr {
	if g == nil || !atomic.CompareAndSwapInt32(&g.released, 0, 1) {
		return 0
	}
	t := g.Texture
	g.Texture = 0
	return t
}

// Release drops the frame's reference if it was never Taken — this is
// the frame's destructor path when it is dropped before encoding.
func (g *GPUFrame) Release() {
	if g == nil || !atomic.CompareAndSwapInt32(&g.released, 0, 1) {
		return
	}
	if g.releaser != nil {
		g.releaser.Release()
	}
}

// RawFrame is the tagged-variant frame descriptor: Cpu{…} and
// Gpu{texture} arms, matching the reshape called for in spec §9 so the
// encoder's GPU path can take the handle out of the frame before
// submission, making double-release structurally impossible.
type RawFrame struct {
	CPU         *CPUFrame
	GPU         *GPUFrame
	TimestampMS int64
}

// Validate enforces the RawFrame invariants from the data model: a CPU
// variant must satisfy CPUFrame.Validate, a GPU variant must carry
// positive dimensions (already enforced by NewGPUFrame), and at least
// one variant must be present.
func (f *RawFrame) Validate() error {
	if f.CPU == nil && f.GPU == nil {
		return fmt.Errorf("frame: neither CPU nor GPU payload present")
	}
	if f.CPU != nil {
		if err := f.CPU.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Release destroys the frame, releasing exactly one GPU texture
// reference if present. Safe to call on a CPU-only frame.
func (f *RawFrame) Release() {
	if f == nil {
		return
	}
	if f.GPU != nil {
		f.GPU.Release()
	}
}
