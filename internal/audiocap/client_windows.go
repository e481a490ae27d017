// SPDX-License-Identifier: MIT

//go:build windows

package audiocap

import (
	"encoding/binary"
	"os"
	"unsafe"

	ole "github.com/go-ole/go-ole"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/wincom"
)

var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioClient         = ole.NewGUID("{1CB9AD4C-DBFA-4C32-B178-C2F568A703B2}")
	iidIAudioCaptureClient  = ole.NewGUID("{C8ADBD64-E71E-48a0-A4DE-185C395CD317}")
)

const (
	eRender  = 0
	eCapture = 1
	eConsole = 0

	audClientShareModeShared = 0
	audClientStreamFlagsLoopback   = 0x00020000
	audClientStreamFlagsEventless  = 0
	wFormatTagIEEEFloat            = 3

	hnsRequestedBufferDuration = 10_000_000 // 1 second, in 100ns units
)

// vtable slot indices, counted from the IUnknown base (QueryInterface=0,
// AddRef=1, Release=2) through each interface's own methods, in the
// declaration order fixed by the WASAPI headers.
const (
	slotEnumGetDefaultAudioEndpoint = 4

	slotDeviceActivate = 3

	slotClientInitialize      = 3
	slotClientGetBufferSize   = 4
	slotClientGetService      = 14
	slotClientStart           = 10
	slotClientStop            = 11

	slotCaptureGetBuffer         = 3
	slotCaptureReleaseBuffer     = 4
	slotCaptureGetNextPacketSize = 5
)

// waveFormatEx mirrors WAVEFORMATEX for the PCM/float formats
// this client requests; WASAPI accepts either with wBitsPerSample=32,
// wFormatTag=WAVE_FORMAT_IEEE_FLOAT.
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	Size           uint16
}

// wasapiClient implements the Client interface against the real WASAPI
// API via raw vtable calls (go-ole only models IDispatch automation,
// not WASAPI's COM interfaces, so this codebase drives them directly
// through wincom.CallMethod — see spec §4.6's endpoint loopback/capture
// activation sequence).
type wasapiClient struct {
	loopback bool

	enumerator uintptr
	device     uintptr
	client     uintptr
	capture    uintptr
	format     *waveFormatEx
}

// NewSystemClient constructs the loopback-capture client for the
// default render endpoint (what the user hears).
func NewSystemClient() Client { return &wasapiClient{loopback: true} }

// NewMicrophoneClient constructs the capture client for the default
// capture endpoint (the default microphone).
func NewMicrophoneClient() Client { return &wasapiClient{loopback: false} }

// Open initializes COM in multithreaded mode on the calling goroutine's
// OS thread (the worker goroutine locks itself to that thread before
// calling Open, per spec §4.6) and activates the capture client.
func (c *wasapiClient) Open() error {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: CoInitializeEx(MTA)")
	}
	if err := c.open(); err != nil {
		ole.CoUninitialize()
		return err
	}
	return nil
}

func (c *wasapiClient) open() error {
	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: CoCreateInstance(MMDeviceEnumerator)")
	}
	// IUnknown's first field is the vtable pointer, identical to the COM
	// object's own in-memory layout, so the struct address doubles as
	// the raw object pointer CallMethod expects.
	c.enumerator = uintptr(unsafe.Pointer(unk))

	dataFlow := uintptr(eRender)
	if !c.loopback {
		dataFlow = uintptr(eCapture)
	}
	var devicePtr uintptr
	if _, _, err := wincom.CallMethod(c.enumerator, slotEnumGetDefaultAudioEndpoint,
		dataFlow, uintptr(eConsole), uintptr(unsafe.Pointer(&devicePtr))); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: GetDefaultAudioEndpoint")
	}
	c.device = devicePtr

	var clientPtr uintptr
	if _, _, err := wincom.CallMethod(c.device, slotDeviceActivate,
		uintptr(unsafe.Pointer(iidIAudioClient)), 0x1 /* CLSCTX_INPROC_SERVER */, 0,
		uintptr(unsafe.Pointer(&clientPtr))); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: IMMDevice.Activate(IAudioClient)")
	}
	c.client = clientPtr

	format := &waveFormatEx{
		FormatTag:      wFormatTagIEEEFloat,
		Channels:       2,
		SamplesPerSec:  48000,
		BitsPerSample:  32,
		BlockAlign:     8,
		AvgBytesPerSec: 48000 * 8,
	}
	c.format = format

	streamFlags := uintptr(audClientStreamFlagsEventless)
	if c.loopback {
		streamFlags = uintptr(audClientStreamFlagsLoopback)
	}
	if _, _, err := wincom.CallMethod(c.client, slotClientInitialize,
		audClientShareModeShared, streamFlags,
		uintptr(hnsRequestedBufferDuration), 0,
		uintptr(unsafe.Pointer(format)), 0); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: IAudioClient.Initialize")
	}

	var capturePtr uintptr
	if _, _, err := wincom.CallMethod(c.client, slotClientGetService,
		uintptr(unsafe.Pointer(iidIAudioCaptureClient)), uintptr(unsafe.Pointer(&capturePtr))); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: IAudioClient.GetService(IAudioCaptureClient)")
	}
	c.capture = capturePtr

	if _, _, err := wincom.CallMethod(c.client, slotClientStart); err != nil {
		return capterr.Wrap(capterr.KindResource, err, "audiocap: IAudioClient.Start")
	}
	return nil
}

func (c *wasapiClient) Next() (Packet, bool, error) {
	var packetFrames uintptr
	if _, _, err := wincom.CallMethod(c.capture, slotCaptureGetNextPacketSize, uintptr(unsafe.Pointer(&packetFrames))); err != nil {
		return Packet{}, false, capterr.Wrap(capterr.KindRuntime, err, "audiocap: GetNextPacketSize")
	}
	if packetFrames == 0 {
		return Packet{}, false, nil
	}

	var dataPtr uintptr
	var numFrames uintptr
	var flags uintptr
	if _, _, err := wincom.CallMethod(c.capture, slotCaptureGetBuffer,
		uintptr(unsafe.Pointer(&dataPtr)), uintptr(unsafe.Pointer(&numFrames)),
		uintptr(unsafe.Pointer(&flags)), 0, 0); err != nil {
		return Packet{}, false, capterr.Wrap(capterr.KindRuntime, err, "audiocap: GetBuffer")
	}

	const silentFlag = 0x2 // AUDCLNT_BUFFERFLAGS_SILENT
	bytesPerFrame := int(c.format.BlockAlign)
	n := int(numFrames) * bytesPerFrame

	var out []byte
	silent := flags&silentFlag != 0
	if !silent && dataPtr != 0 && n > 0 {
		out = make([]byte, n)
		src := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), n)
		copy(out, src)
	}

	if _, _, err := wincom.CallMethod(c.capture, slotCaptureReleaseBuffer, numFrames); err != nil {
		return Packet{}, false, capterr.Wrap(capterr.KindRuntime, err, "audiocap: ReleaseBuffer")
	}

	return Packet{Data: out, Silent: silent}, true, nil
}

func (c *wasapiClient) Close() error {
	if c.client != 0 {
		_, _, _ = wincom.CallMethod(c.client, slotClientStop)
	}
	releaseIfSet(&c.capture)
	releaseIfSet(&c.client)
	releaseIfSet(&c.device)
	releaseIfSet(&c.enumerator)
	ole.CoUninitialize()
	return nil
}

func releaseIfSet(ptr *uintptr) {
	if *ptr == 0 {
		return
	}
	unk := (*ole.IUnknown)(unsafe.Pointer(*ptr))
	unk.Release()
	*ptr = 0
}

// wavWriter streams raw little-endian float32 PCM samples straight
// into a RIFF/WAVE container, patching the two size fields on Close
// per the standard fixed-header layout.
type wavWriter struct {
	f             *os.File
	dataBytes     uint32
	sampleRate    uint32
	channels      uint16
	bitsPerSample uint16
}

// NewWAVWriter creates (or truncates) path and writes a placeholder
// 44-byte RIFF/WAVE header sized for 48kHz/32-bit-float stereo,
// matching the format requested from WASAPI above.
func NewWAVWriter(path string) (WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, capterr.Wrap(capterr.KindResource, err, "audiocap: create wav file %s", path)
	}
	w := &wavWriter{f: f, sampleRate: 48000, channels: 2, bitsPerSample: 32}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wFormatTagIEEEFloat)
	binary.LittleEndian.PutUint16(hdr[22:24], w.channels)
	binary.LittleEndian.PutUint32(hdr[24:28], w.sampleRate)
	blockAlign := w.channels * (w.bitsPerSample / 8)
	binary.LittleEndian.PutUint32(hdr[28:32], w.sampleRate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], w.bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0)
	_, err := w.f.WriteAt(hdr[:], 0)
	return err
}

func (w *wavWriter) WriteSamples(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := w.f.Write(data); err != nil {
		return err
	}
	w.dataBytes += uint32(len(data))
	return nil
}

func (w *wavWriter) Close() error {
	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[0:4], 36+w.dataBytes)
	binary.LittleEndian.PutUint32(sizes[4:8], w.dataBytes)
	if _, err := w.f.WriteAt(sizes[0:4], 4); err != nil {
		w.f.Close()
		return err
	}
	if _, err := w.f.WriteAt(sizes[4:8], 40); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// NewEndpointFactory returns the EndpointFactory used by the
// composition root to wire real WASAPI clients into the Service.
func NewEndpointFactory(ep Endpoint) EndpointFactory {
	return func(path string) (Client, WAVWriter, error) {
		writer, err := NewWAVWriter(path)
		if err != nil {
			return nil, nil, err
		}
		var client Client
		if ep == EndpointSystem {
			client = NewSystemClient()
		} else {
			client = NewMicrophoneClient()
		}
		return client, writer, nil
	}
}
