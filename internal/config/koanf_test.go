// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKoanfConfigLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", `
target_id: 1
fps: 60
encoder:
  output_path: C:/out.mp4
  container: mp4
  codec: h264
  preference: auto
  crf: 20
  quality_mode: quality
audio:
  capture_system_audio: true
  microphone_gain_pct: 100
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, cfg.TargetID)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, ContainerMP4, cfg.Encoder.Container)
	assert.True(t, cfg.Audio.CaptureSystemAudio)
}

func TestKoanfConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", `
target_id: 1
fps: 30
encoder:
  output_path: C:/out.mp4
  container: mp4
  crf: 23
`)

	t.Setenv("CAPTURIST_FPS", "24")
	t.Setenv("CAPTURIST_ENCODER_CRF", "18")

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("CAPTURIST"))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.FPS)
	assert.Equal(t, 18, cfg.Encoder.CRF)
}

func TestKoanfConfigReload(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", "fps: 30\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.FPS)

	writeYAML(t, dir, "session.yaml", "fps: 45\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n")
	require.NoError(t, kc.Reload())

	cfg, err = kc.Load()
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.FPS)
}

func TestKoanfConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "bad.yaml", "::not yaml::")

	_, err := NewKoanfConfig(WithYAMLFile(path))
	assert.Error(t, err)
}

func TestKoanfConfigMissingFile(t *testing.T) {
	_, err := NewKoanfConfig(WithYAMLFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestKoanfConfigNoFileUsesDefaultsOnly(t *testing.T) {
	kc, err := NewKoanfConfig()
	require.NoError(t, err)
	assert.False(t, kc.Exists("target_id"))
}

func TestKoanfConfigGetMethods(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", "fps: 30\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n  quality_mode: quality\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	assert.Equal(t, 30, kc.GetInt("fps"))
	assert.Equal(t, "quality", kc.GetString("encoder.quality_mode"))
	assert.True(t, kc.Exists("encoder.output_path"))
	assert.False(t, kc.Exists("nonexistent"))
}

func TestKoanfConfigAll(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", "fps: 30\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	all := kc.All()
	assert.Contains(t, all, "fps")
}

func TestKoanfConfigWatchNoFile(t *testing.T) {
	kc, err := NewKoanfConfig()
	require.NoError(t, err)
	err = kc.Watch(context.Background(), func(string, error) {})
	assert.Error(t, err)
}

func TestKoanfConfigWatchContextCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", "fps: 30\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- kc.Watch(ctx, func(string, error) {}) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after context cancellation")
	}
}

func TestKoanfConfigConcurrentReloadAndRead(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "session.yaml", "fps: 30\nencoder:\n  output_path: C:/out.mp4\n  container: mp4\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = kc.Reload()
		}
	}()
	for i := 0; i < 20; i++ {
		_, _ = kc.Load()
	}
	<-done
}
