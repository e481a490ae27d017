// SPDX-License-Identifier: MIT

//go:build windows

package audiocap

import (
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/wincom"
)

var (
	ole32             = windows.NewLazySystemDLL("ole32.dll")
	procCoTaskMemFree = ole32.NewProc("CoTaskMemFree")
)

// Further vtable slots beyond the ones client_windows.go already names,
// counted the same way (from the IUnknown base).
const (
	slotEnumEnumAudioEndpoints = 3
	slotCollectionGetCount     = 3
	slotCollectionItem         = 4
	slotDeviceGetID            = 5
)

// EnumerateInputDevices lists every active capture (microphone)
// endpoint's device ID, the get_audio_input_devices() read of spec §6.
// Friendly-name resolution (IPropertyStore + PKEY_Device_FriendlyName)
// is not implemented here: the endpoint ID string is enough to satisfy
// the command surface's contract of a stable per-device string, and
// adding PROPVARIANT marshaling for a display label only would not be
// exercised by anything else in this module.
func EnumerateInputDevices() ([]string, error) {
	var names []string
	err := wincom.WithMTA(func() error {
		unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
		if err != nil {
			return capterr.Wrap(capterr.KindResource, err, "audiocap: CoCreateInstance(MMDeviceEnumerator)")
		}
		enumerator := uintptr(unsafe.Pointer(unk))
		defer wincom.Release(unk)

		var collection uintptr
		const (
			eCaptureFlow       = eCapture
			deviceStateActive  = 0x1
		)
		if _, _, err := wincom.CallMethod(enumerator, slotEnumEnumAudioEndpoints,
			uintptr(eCaptureFlow), uintptr(deviceStateActive), uintptr(unsafe.Pointer(&collection))); err != nil {
			return capterr.Wrap(capterr.KindResource, err, "audiocap: EnumAudioEndpoints")
		}
		defer releaseIfSet(&collection)

		var count uintptr
		if _, _, err := wincom.CallMethod(collection, slotCollectionGetCount, uintptr(unsafe.Pointer(&count))); err != nil {
			return capterr.Wrap(capterr.KindResource, err, "audiocap: IMMDeviceCollection.GetCount")
		}

		for i := uintptr(0); i < count; i++ {
			var device uintptr
			if _, _, err := wincom.CallMethod(collection, slotCollectionItem, i, uintptr(unsafe.Pointer(&device))); err != nil {
				return capterr.Wrap(capterr.KindResource, err, "audiocap: IMMDeviceCollection.Item")
			}

			var idPtr uintptr
			if _, _, err := wincom.CallMethod(device, slotDeviceGetID, uintptr(unsafe.Pointer(&idPtr))); err != nil {
				releaseIfSet(&device)
				return capterr.Wrap(capterr.KindResource, err, "audiocap: IMMDevice.GetId")
			}
			if idPtr != 0 {
				names = append(names, windows.UTF16PtrToString((*uint16)(unsafe.Pointer(idPtr))))
				procCoTaskMemFree.Call(idPtr)
			}
			releaseIfSet(&device)
		}
		return nil
	})
	return names, err
}
