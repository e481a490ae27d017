// SPDX-License-Identifier: MIT

//go:build !windows

package audiocap

import "errors"

// ErrUnsupported is returned on non-Windows platforms by NewWAVWriter,
// the endpoint factory, and the stub clients and writer; WASAPI capture
// has no portable equivalent.
var ErrUnsupported = errors.New("audiocap: WASAPI capture is only available on windows")

type stubClient struct{}

func (stubClient) Open() error                  { return ErrUnsupported }
func (stubClient) Next() (Packet, bool, error)  { return Packet{}, false, ErrUnsupported }
func (stubClient) Close() error                 { return nil }

// NewSystemClient returns a client that fails to open on non-Windows
// platforms.
func NewSystemClient() Client { return stubClient{} }

// NewMicrophoneClient returns a client that fails to open on
// non-Windows platforms.
func NewMicrophoneClient() Client { return stubClient{} }

type stubWriter struct{}

func (stubWriter) WriteSamples([]byte) error { return ErrUnsupported }
func (stubWriter) Close() error              { return nil }

// NewWAVWriter returns a writer that fails on non-Windows platforms.
func NewWAVWriter(string) (WAVWriter, error) { return nil, ErrUnsupported }

// NewEndpointFactory returns a factory that always fails with
// ErrUnsupported on non-Windows platforms.
func NewEndpointFactory(ep Endpoint) EndpointFactory {
	return func(path string) (Client, WAVWriter, error) {
		return nil, nil, ErrUnsupported
	}
}
