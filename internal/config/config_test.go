// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSessionConfig() *SessionConfig {
	cfg := DefaultConfig()
	cfg.TargetID = 1
	cfg.Encoder.OutputPath = "C:/Users/test/Videos/out.mp4"
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := validSessionConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeFPS(t *testing.T) {
	cfg := validSessionConfig()
	cfg.FPS = 0
	assert.Error(t, cfg.Validate())

	cfg.FPS = 121
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedCrop(t *testing.T) {
	cfg := validSessionConfig()
	cfg.Crop = &Crop{X: 0, Y: 0, Width: 0, Height: 100}
	assert.Error(t, cfg.Validate())

	cfg.Crop = &Crop{X: -1, Y: 0, Width: 10, Height: 10}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownContainer(t *testing.T) {
	cfg := validSessionConfig()
	cfg.Encoder.Container = "avi"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsCRFOutOfRange(t *testing.T) {
	cfg := validSessionConfig()
	cfg.Encoder.CRF = -1
	assert.Error(t, cfg.Validate())

	cfg.Encoder.CRF = 52
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyOutputPath(t *testing.T) {
	cfg := validSessionConfig()
	cfg.Encoder.OutputPath = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsGainOutOfRange(t *testing.T) {
	cfg := validSessionConfig()
	cfg.Audio.MicrophoneGainPct = -1
	assert.Error(t, cfg.Validate())

	cfg.Audio.MicrophoneGainPct = 401
	assert.Error(t, cfg.Validate())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")

	cfg := validSessionConfig()
	cfg.FPS = 60
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.FPS, loaded.FPS)
	assert.Equal(t, cfg.Encoder.OutputPath, loaded.Encoder.OutputPath)
}

func TestSaveCleansUpTempFileOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	cfg := validSessionConfig()

	err := cfg.saveWith(path, func(dir, pattern string) (atomicFile, error) {
		f, ferr := os.CreateTemp(dir, pattern)
		require.NoError(t, ferr)
		return failingWriteFile{f}, nil
	})
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "temp file must be removed after a failed write")
}

type failingWriteFile struct{ *os.File }

func (f failingWriteFile) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::not yaml::"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
