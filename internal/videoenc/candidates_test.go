// SPDX-License-Identifier: MIT

package videoenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.EncoderName
	}
	return out
}

func TestBuildCandidatesPreferredBackendFirst(t *testing.T) {
	cs := BuildCandidates(CodecH264, PreferenceAMF, false, false)
	got := names(cs)
	assert.Equal(t, []string{"h264_amf", "h264_nvenc", "h264_qsv", "libx264", "h264", "mpeg4"}, got)
}

func TestBuildCandidatesSoftwarePreferenceSuppressesHardware(t *testing.T) {
	cs := BuildCandidates(CodecH264, PreferenceSoftware, false, false)
	for _, c := range cs {
		assert.NotContains(t, c.EncoderName, "nvenc")
		assert.NotContains(t, c.EncoderName, "amf")
		assert.NotContains(t, c.EncoderName, "qsv")
	}
}

func TestBuildCandidatesExplicitCodecSuppressesRawFallbacks(t *testing.T) {
	cs := BuildCandidates(CodecH264, PreferenceSoftware, false, true)
	got := names(cs)
	assert.Equal(t, []string{"libx264"}, got)
}

func TestBuildCandidatesGPUInputSuppressesSoftware(t *testing.T) {
	cs := BuildCandidates(CodecH264, PreferenceAuto, true, false)
	for _, c := range cs {
		assert.NotEqual(t, "CPU", c.Label)
	}
	assert.NotEmpty(t, cs)
}

func TestBuildCandidatesVP9AlwaysSoftware(t *testing.T) {
	cs := BuildCandidates(CodecVP9, PreferenceNVENC, false, false)
	got := names(cs)
	assert.Equal(t, []string{"libvpx-vp9", "vp9"}, got)
}
