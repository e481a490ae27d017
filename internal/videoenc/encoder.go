// SPDX-License-Identifier: MIT

package videoenc

import (
	"fmt"
	"sync"

	astiav "github.com/asticode/go-astiav"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/frame"
)

// Container is the output container format.
type Container int

const (
	ContainerMP4 Container = iota
	ContainerMKV
	ContainerWebM
)

func (c Container) muxerName() string {
	switch c {
	case ContainerMKV:
		return "matroska"
	case ContainerWebM:
		return "webm"
	default:
		return "mp4"
	}
}

// DefaultCodec returns the container's default video codec when none
// is explicitly requested.
func (c Container) DefaultCodec() Codec {
	if c == ContainerWebM {
		return CodecVP9
	}
	return CodecH264
}

// Config configures one encoder session.
type Config struct {
	OutputPath    string
	Container     Container
	Codec         Codec
	CodecExplicit bool
	Preference    Preference
	FPS           int
	CRF           int
	SpeedPreset   string
	QualityMode   QualityMode
	GPUInput      bool
}

type state int

const (
	stateUninitialized state = iota
	stateInitialized
	stateClosed
)

// Worker is the Video Encoder Worker (C5): Uninitialized ->
// Initialized(ctx) -> Closed, opened lazily on the first admitted
// frame.
type Worker struct {
	cfg Config

	mu    sync.Mutex
	state state

	outCtx    *astiav.FormatContext
	ioCtx     *astiav.IOContext
	codecCtx  *astiav.CodecContext
	stream    *astiav.Stream
	pkt       *astiav.Packet

	// CPU path
	scaleCtx *astiav.SoftwareScaleContext
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame

	outW, outH int
	backendLabel string
	codecLabel   string

	lastPTS        int64
	firstTimestamp int64
	haveFirstTS    bool

	onOpened func(backendLabel, codecLabel string)
	onClosed func()
}

// NewWorker constructs a Worker; onOpened/onClosed are invoked exactly
// when the encoder transitions open/closed, matching the Live Status
// service's "set after open succeeds, cleared on termination" rule
// (spec §5).
func NewWorker(cfg Config, onOpened func(string, string), onClosed func()) *Worker {
	return &Worker{cfg: cfg, onOpened: onOpened, onClosed: onClosed}
}

func evenDown(v int) int {
	if v%2 != 0 {
		v--
	}
	return v
}

// OnFrame handles one admitted RawFrame, opening the encoder lazily on
// the first call.
func (w *Worker) OnFrame(f *frame.RawFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateClosed {
		return capterr.New(capterr.KindRuntime, "videoenc: frame submitted after close")
	}
	if w.state == stateUninitialized {
		srcW, srcH := frameDims(f)
		if err := w.open(srcW, srcH); err != nil {
			return capterr.Wrap(capterr.KindResource, err, "videoenc: open")
		}
		w.state = stateInitialized
		if w.onOpened != nil {
			w.onOpened(w.backendLabel, w.codecLabel)
		}
	}

	if !w.haveFirstTS {
		w.firstTimestamp = f.TimestampMS
		w.haveFirstTS = true
	}
	pts := f.TimestampMS - w.firstTimestamp
	if pts <= w.lastPTS {
		pts = w.lastPTS + 1
	}
	w.lastPTS = pts

	if f.GPU != nil {
		return w.submitGPU(f, pts)
	}
	return w.submitCPU(f, pts)
}

func frameDims(f *frame.RawFrame) (int, int) {
	if f.CPU != nil {
		return f.CPU.Width, f.CPU.Height
	}
	return f.GPU.Width, f.GPU.Height
}

func (w *Worker) open(srcW, srcH int) error {
	outW := evenDown(srcW)
	outH := evenDown(srcH)
	if outW < 2 || outH < 2 {
		return fmt.Errorf("videoenc: output dimensions %dx%d too small", outW, outH)
	}
	w.outW, w.outH = outW, outH

	outCtx, err := astiav.AllocOutputFormatContext(nil, w.cfg.Container.muxerName(), w.cfg.OutputPath)
	if err != nil || outCtx == nil {
		return fmt.Errorf("AllocOutputFormatContext: %w", err)
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	ioCtx, err := astiav.OpenIOContext(w.cfg.OutputPath, ioFlags, nil, nil)
	if err != nil {
		outCtx.Free()
		return fmt.Errorf("OpenIOContext: %w", err)
	}
	outCtx.SetPb(ioCtx)

	candidates := BuildCandidates(w.cfg.Codec, w.cfg.Preference, w.cfg.GPUInput, w.cfg.CodecExplicit)
	if len(candidates) == 0 {
		ioCtx.Close()
		ioCtx.Free()
		outCtx.Free()
		return fmt.Errorf("videoenc: no encoder candidates for codec")
	}

	var opened *astiav.CodecContext
	var chosen Candidate
	for _, cand := range candidates {
		codec := astiav.FindEncoderByName(cand.EncoderName)
		if codec == nil {
			continue
		}
		ctx, err := w.tryOpen(codec, cand)
		if err == nil {
			opened = ctx
			chosen = cand
			break
		}
	}
	if opened == nil {
		ioCtx.Close()
		ioCtx.Free()
		outCtx.Free()
		return fmt.Errorf("videoenc: all encoder candidates failed to open")
	}

	stream := outCtx.NewStream(nil)
	if stream == nil {
		opened.Free()
		ioCtx.Close()
		ioCtx.Free()
		outCtx.Free()
		return fmt.Errorf("videoenc: NewStream failed")
	}
	if err := opened.ToCodecParameters(stream.CodecParameters()); err != nil {
		return fmt.Errorf("videoenc: ToCodecParameters: %w", err)
	}
	stream.SetTimeBase(opened.TimeBase())

	if err := outCtx.WriteHeader(nil); err != nil {
		return fmt.Errorf("videoenc: WriteHeader: %w", err)
	}

	w.outCtx = outCtx
	w.ioCtx = ioCtx
	w.codecCtx = opened
	w.stream = stream
	w.pkt = astiav.AllocPacket()
	w.backendLabel = chosen.Label
	w.codecLabel = codecName(w.cfg.Codec)

	if !w.cfg.GPUInput {
		if err := w.setupScaler(srcW, srcH, outW, outH); err != nil {
			return err
		}
	}
	return nil
}

func codecName(c Codec) string {
	switch c {
	case CodecH265:
		return "H.265"
	case CodecVP9:
		return "VP9"
	default:
		return "H.264"
	}
}

func backendOf(encoderName string) Backend {
	switch {
	case hasSuffix(encoderName, "_nvenc"):
		return BackendNVENC
	case hasSuffix(encoderName, "_amf"):
		return BackendAMF
	case hasSuffix(encoderName, "_qsv"):
		return BackendQSV
	case encoderName == "libvpx-vp9" || encoderName == "vp9":
		return BackendSoftwareVP9
	default:
		return BackendSoftwareH26x
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// tryOpen opens one candidate codec, retrying once with empty options
// if the first attempt (with derived options) fails — spec §4.5.1.
func (w *Worker) tryOpen(codec *astiav.Codec, cand Candidate) (*astiav.CodecContext, error) {
	build := func(opts Options) (*astiav.CodecContext, error) {
		ctx := astiav.AllocCodecContext(codec)
		if ctx == nil {
			return nil, fmt.Errorf("AllocCodecContext(%s) failed", cand.EncoderName)
		}
		ctx.SetWidth(w.outW)
		ctx.SetHeight(w.outH)
		ctx.SetTimeBase(astiav.NewRational(1, 1000))
		ctx.SetFramerate(astiav.NewRational(w.cfg.FPS, 1))
		ctx.SetGopSize(GOPSize(w.cfg.FPS))
		ctx.SetMaxBFrames(0)
		if w.cfg.GPUInput {
			ctx.SetPixelFormat(astiav.PixelFormatD3d11)
		} else {
			ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
		}
		if w.outCtx.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
			ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
		}

		dict := astiav.NewDictionary()
		defer dict.Free()
		for _, e := range opts.Entries {
			dict.Set(e.Key, e.Value, 0)
		}
		if err := ctx.Open(codec, dict); err != nil {
			ctx.Free()
			return nil, err
		}
		return ctx, nil
	}

	opts := DeriveOptions(backendOf(cand.EncoderName), w.cfg.Codec, w.cfg.QualityMode, w.cfg.CRF, w.cfg.SpeedPreset, w.cfg.FPS, w.outW, w.outH)
	if ctx, err := build(opts); err == nil {
		return ctx, nil
	}
	return build(Options{})
}

func (w *Worker) setupScaler(srcW, srcH, dstW, dstH int) error {
	flags := swscaleFlags(w.cfg.QualityMode)
	ssc, err := astiav.CreateSoftwareScaleContext(srcW, srcH, astiav.PixelFormatBgra, dstW, dstH, astiav.PixelFormatYuv420P, flags)
	if err != nil {
		return fmt.Errorf("CreateSoftwareScaleContext: %w", err)
	}
	src := astiav.AllocFrame()
	src.SetWidth(srcW)
	src.SetHeight(srcH)
	src.SetPixelFormat(astiav.PixelFormatBgra)

	dst := astiav.AllocFrame()
	dst.SetWidth(dstW)
	dst.SetHeight(dstH)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		return fmt.Errorf("dst.AllocBuffer: %w", err)
	}

	w.scaleCtx = ssc
	w.srcFrame = src
	w.dstFrame = dst
	return nil
}

func swscaleFlags(mode QualityMode) astiav.SoftwareScaleContextFlags {
	switch mode {
	case QualityPerformance:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagFastBilinear)
	case QualityQuality:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic)
	default:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear)
	}
}

func (w *Worker) submitCPU(f *frame.RawFrame, pts int64) error {
	if f.CPU == nil {
		return fmt.Errorf("videoenc: CPU pipeline requires CPU frame data")
	}
	if err := w.srcFrame.Data().SetBytes(f.CPU.Data, 0); err != nil {
		return fmt.Errorf("videoenc: copy source bytes: %w", err)
	}
	w.srcFrame.SetLineSize(f.CPU.RowStride, 0)

	if err := w.scaleCtx.ScaleFrame(w.srcFrame, w.dstFrame); err != nil {
		return fmt.Errorf("videoenc: ScaleFrame: %w", err)
	}
	w.dstFrame.SetPts(pts)
	return w.encodeAndMux(w.dstFrame)
}

func (w *Worker) submitGPU(f *frame.RawFrame, pts int64) error {
	texture := f.GPU.Take()
	defer f.GPU.Release() // no-op; Take already claimed the single reference

	gf := astiav.AllocFrame()
	defer gf.Free()
	gf.SetWidth(w.outW)
	gf.SetHeight(w.outH)
	gf.SetPixelFormat(astiav.PixelFormatD3d11)
	gf.SetPts(pts)
	gf.Data().SetPointer(texture, 0)

	return w.encodeAndMux(gf)
}

func (w *Worker) encodeAndMux(f *astiav.Frame) error {
	if err := w.codecCtx.SendFrame(f); err != nil {
		return fmt.Errorf("videoenc: SendFrame: %w", err)
	}
	return w.drain()
}

func (w *Worker) drain() error {
	for {
		err := w.codecCtx.ReceivePacket(w.pkt)
		if err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return nil
			}
			return fmt.Errorf("videoenc: ReceivePacket: %w", err)
		}
		w.pkt.RescaleTs(w.codecCtx.TimeBase(), w.stream.TimeBase())
		w.pkt.SetStreamIndex(w.stream.Index())
		if err := w.outCtx.WriteInterleavedFrame(w.pkt); err != nil {
			w.pkt.Unref()
			return fmt.Errorf("videoenc: WriteInterleavedFrame: %w", err)
		}
		w.pkt.Unref()
	}
}

// OnStop finalizes the encoder: flush, trailer, close, per spec
// §4.5's "all steps are attempted; only the first error is returned".
func (w *Worker) OnStop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateInitialized {
		w.state = stateClosed
		return nil
	}

	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if w.codecCtx != nil {
		record(w.codecCtx.SendFrame(nil))
		record(w.drain())
	}
	if w.outCtx != nil {
		record(w.outCtx.WriteTrailer())
	}

	w.closeResources()

	w.state = stateClosed
	if w.onClosed != nil {
		w.onClosed()
	}
	return first
}

func (w *Worker) closeResources() {
	if w.pkt != nil {
		w.pkt.Free()
		w.pkt = nil
	}
	if w.scaleCtx != nil {
		w.scaleCtx.Free()
		w.scaleCtx = nil
	}
	if w.srcFrame != nil {
		w.srcFrame.Free()
		w.srcFrame = nil
	}
	if w.dstFrame != nil {
		w.dstFrame.Free()
		w.dstFrame = nil
	}
	if w.codecCtx != nil {
		w.codecCtx.Free()
		w.codecCtx = nil
	}
	if w.ioCtx != nil {
		w.ioCtx.Close()
		w.ioCtx.Free()
		w.ioCtx = nil
	}
	if w.outCtx != nil {
		w.outCtx.Free()
		w.outCtx = nil
	}
}

// BackendLabel returns the human-readable backend name the encoder
// opened with ("NVENC"/"AMF"/"QSV"/"CPU"), empty before open.
func (w *Worker) BackendLabel() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backendLabel
}
