// SPDX-License-Identifier: MIT

package mux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeVideoStartOffsetMSMissingFile(t *testing.T) {
	_, err := ProbeVideoStartOffsetMS(filepath.Join(t.TempDir(), "nope.mp4"))
	assert.Error(t, err)
}

func TestProbeVideoStartOffsetMSNotAnMP4(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not an mp4 container"), 0o644))

	_, err := ProbeVideoStartOffsetMS(path)
	assert.Error(t, err, "a non-MP4 file must fail the probe rather than return a bogus offset")
}

func TestProbeVideoStartOffsetMSEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := ProbeVideoStartOffsetMS(path)
	assert.Error(t, err, "an empty file must fail the probe, never silently succeed with offset 0")
}
