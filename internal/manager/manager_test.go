// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmunder/capturist/internal/audiocap"
	"github.com/xmunder/capturist/internal/capturerun"
	"github.com/xmunder/capturist/internal/config"
	"github.com/xmunder/capturist/internal/status"
	"github.com/xmunder/capturist/internal/target"
)

type fakeProvider struct {
	targets []target.Target
	err     error
}

func (p *fakeProvider) IsSupported() bool { return true }
func (p *fakeProvider) GetTargets() ([]target.Target, error) {
	return p.targets, p.err
}

func noopFactory(target.Target, *target.Region) (capturerun.Capturer, error) {
	return nil, nil
}

func newTestManager(targets []target.Target) *Manager {
	return New(&fakeProvider{targets: targets}, status.New(), noopFactory, "ffmpeg", "", false, false)
}

func baseConfig(targetID int32) config.SessionConfig {
	cfg := *config.DefaultConfig()
	cfg.TargetID = targetID
	cfg.Encoder.OutputPath = "C:/Users/test/Videos/out.mp4"
	return cfg
}

func TestStartRejectsInvalidConfigBeforeTouchingProvider(t *testing.T) {
	m := newTestManager(nil)
	cfg := baseConfig(1)
	cfg.FPS = 0

	err := m.Start(context.Background(), cfg)
	assert.Error(t, err)
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestStartFailsOnMissingTarget(t *testing.T) {
	m := newTestManager([]target.Target{{ID: 2, Kind: target.KindMonitor, Width: 1920, Height: 1080}})
	cfg := baseConfig(999)

	err := m.Start(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestStartFailsOnCropExceedingTarget(t *testing.T) {
	m := newTestManager([]target.Target{{ID: 1, Kind: target.KindMonitor, Width: 1920, Height: 1080}})
	cfg := baseConfig(1)
	cfg.Crop = &config.Crop{X: 0, Y: 0, Width: 3000, Height: 1080}

	err := m.Start(context.Background(), cfg)
	assert.Error(t, err)
}

func TestPauseResumeStopFailOutsideRunningSession(t *testing.T) {
	m := newTestManager(nil)

	assert.Error(t, m.Pause())
	assert.Error(t, m.Resume())
	assert.NoError(t, m.Stop(context.Background()), "stop is idempotent when no session exists")
}

func TestSnapshotDefaultsToIdle(t *testing.T) {
	m := newTestManager(nil)
	snap := m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, int64(0), snap.ElapsedMS)
	assert.False(t, snap.IsProcessing)
}

func TestSetAudioEnabledFailsOutsideRunningSession(t *testing.T) {
	m := newTestManager(nil)
	assert.Error(t, m.SetAudioEnabled(audiocap.EndpointMicrophone, true))
}

func TestLiveAudioStatusEmptyOutsideRunningSession(t *testing.T) {
	m := newTestManager(nil)
	assert.Nil(t, m.LiveAudioStatus())
}

func TestEnvFlagEnabled(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "True": true, "YES": true,
		"0": false, "false": false, "": false, "nope": false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, EnvFlagEnabled(raw), "raw=%q", raw)
	}
}
