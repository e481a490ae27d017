// SPDX-License-Identifier: MIT

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoderLabelSetAndClear(t *testing.T) {
	s := New()
	assert.Empty(t, s.EncoderLabel())
	s.SetEncoderLabel("NVENC")
	assert.Equal(t, "NVENC", s.EncoderLabel())
	s.ClearEncoderLabel()
	assert.Empty(t, s.EncoderLabel())
}

func TestProcessingFlagReentrant(t *testing.T) {
	s := New()
	assert.False(t, s.IsProcessing())
	s.BeginProcessing()
	s.BeginProcessing()
	assert.True(t, s.IsProcessing())
	s.EndProcessing()
	assert.True(t, s.IsProcessing())
	s.EndProcessing()
	assert.False(t, s.IsProcessing())
}

func TestAudioStatusRoundTrip(t *testing.T) {
	s := New()
	a := AudioStatus{CaptureSystemAudio: true, SystemDeviceName: "Speakers"}
	s.SetAudioStatus(a)
	assert.Equal(t, a, s.AudioStatus())
}
