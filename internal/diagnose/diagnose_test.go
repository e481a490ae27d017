// SPDX-License-Identifier: MIT

package diagnose

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func writeFakeBinary(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a real binary"), 0o755))
}

func TestFindFFmpegPrefersExplicitBin(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "myffmpeg")
	writeFakeBinary(t, bin)

	got, gotDir, err := FindFFmpeg(fakeEnv(map[string]string{"CAPTURIST_FFMPEG_BIN": bin}))
	require.NoError(t, err)
	assert.Equal(t, bin, got)
	assert.Equal(t, dir, gotDir)
}

func TestFindFFmpegExplicitBinMissingErrors(t *testing.T) {
	_, _, err := FindFFmpeg(fakeEnv(map[string]string{"CAPTURIST_FFMPEG_BIN": filepath.Join(t.TempDir(), "missing")}))
	assert.Error(t, err)
}

func TestFindFFmpegSearchesFFmpegDirBinSubdir(t *testing.T) {
	dir := t.TempDir()
	exe := "ffmpeg"
	if runtime.GOOS == "windows" {
		exe = "ffmpeg.exe"
	}
	bin := filepath.Join(dir, "bin", exe)
	writeFakeBinary(t, bin)

	got, gotDir, err := FindFFmpeg(fakeEnv(map[string]string{"FFMPEG_DIR": dir}))
	require.NoError(t, err)
	assert.Equal(t, bin, got)
	assert.Equal(t, dir, gotDir)
}

func TestFindFFmpegSearchesFFmpegDirDirect(t *testing.T) {
	dir := t.TempDir()
	exe := "ffmpeg"
	if runtime.GOOS == "windows" {
		exe = "ffmpeg.exe"
	}
	bin := filepath.Join(dir, exe)
	writeFakeBinary(t, bin)

	got, _, err := FindFFmpeg(fakeEnv(map[string]string{"FFMPEG_DIR": dir}))
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestFindFFmpegMissingFFmpegDirErrors(t *testing.T) {
	_, _, err := FindFFmpeg(fakeEnv(map[string]string{"FFMPEG_DIR": t.TempDir()}))
	assert.Error(t, err)
}

func TestFindFFmpegFallsBackToPATH(t *testing.T) {
	_, _, err := FindFFmpeg(fakeEnv(nil))
	// Outcome depends on whether ffmpeg happens to be on PATH in the
	// test environment; either a clean resolution or the
	// not-found error are both acceptable, but it must not panic.
	_ = err
}

func TestCapabilityCacheWithNoBinaryReturnsAllFalse(t *testing.T) {
	cache := NewCapabilityCache("")
	caps := cache.Get(context.Background())
	assert.Equal(t, EncoderCapabilities{}, caps)
}

func TestCapabilityCacheIsMemoized(t *testing.T) {
	cache := NewCapabilityCache("")
	first := cache.Get(context.Background())
	second := cache.Get(context.Background())
	assert.Equal(t, first, second)
}

func TestSelfSnapshotReturnsPlausibleValues(t *testing.T) {
	snap, err := SelfSnapshot()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, snap.MemoryRSSMB, 0.0)
}

func TestPIDSnapshotUnknownPIDErrors(t *testing.T) {
	_, err := PIDSnapshot(-1)
	assert.Error(t, err)
}
