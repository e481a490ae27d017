// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "C:/ProgramData/capturist/config.yaml"

// Container is the output container format.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerMKV  Container = "mkv"
	ContainerWebM Container = "webm"
)

// Codec is the video codec requested for a session.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
	CodecVP9  Codec = "vp9"
)

// EncoderPreference selects which hardware backend family to try first.
type EncoderPreference string

const (
	PreferenceAuto     EncoderPreference = "auto"
	PreferenceNVENC    EncoderPreference = "nvenc"
	PreferenceAMF      EncoderPreference = "amf"
	PreferenceQSV      EncoderPreference = "qsv"
	PreferenceSoftware EncoderPreference = "software"
)

// QualityMode governs the bitrate/GOP/rc-options derivation for the
// video encoder.
type QualityMode string

const (
	QualityPerformance QualityMode = "performance"
	QualityBalanced    QualityMode = "balanced"
	QualityQuality     QualityMode = "quality"
)

// Crop is the optional capture-region config, {x,y,width,height} in the
// target's own pixel space.
type Crop struct {
	X      int `yaml:"x" koanf:"x"`
	Y      int `yaml:"y" koanf:"y"`
	Width  int `yaml:"width" koanf:"width"`
	Height int `yaml:"height" koanf:"height"`
}

// EncoderConfig configures the Video Encoder Worker (C5).
type EncoderConfig struct {
	OutputPath  string            `yaml:"output_path" koanf:"output_path"`
	Container   Container         `yaml:"container" koanf:"container"`
	Codec       Codec             `yaml:"codec" koanf:"codec"`
	Preference  EncoderPreference `yaml:"preference" koanf:"preference"`
	CRF         int               `yaml:"crf" koanf:"crf"`
	SpeedPreset string            `yaml:"speed_preset" koanf:"speed_preset"`
	QualityMode QualityMode       `yaml:"quality_mode" koanf:"quality_mode"`
}

// AudioConfig configures the Audio Capture Service (C6) at session
// start; live enable/disable flows through Manager.SetAudioEnabled to
// the running audio service afterward, not through this struct.
type AudioConfig struct {
	CaptureSystemAudio    bool `yaml:"capture_system_audio" koanf:"capture_system_audio"`
	CaptureMicrophoneAudio bool `yaml:"capture_microphone_audio" koanf:"capture_microphone_audio"`
	MicrophoneGainPct     int  `yaml:"microphone_gain_pct" koanf:"microphone_gain_pct"`
}

// SessionConfig is the complete input to Capture Manager.Start, per the
// spec's SessionConfig data-model entity.
type SessionConfig struct {
	TargetID int32         `yaml:"target_id" koanf:"target_id"`
	FPS      int           `yaml:"fps" koanf:"fps"`
	Crop     *Crop         `yaml:"crop,omitempty" koanf:"crop"`
	Encoder  EncoderConfig `yaml:"encoder" koanf:"encoder"`
	Audio    AudioConfig   `yaml:"audio" koanf:"audio"`
}

// Validate reports the first configuration error found, matching
// Capture Manager's start() validation contract (spec §4.1): fps range,
// crop well-formedness (bounds against the target are checked later, once
// the target's dimensions are known), CRF range, container/codec/
// preference/quality enum membership.
func (c *SessionConfig) Validate() error {
	if c.FPS < 1 || c.FPS > 120 {
		return fmt.Errorf("fps must be between 1 and 120 (got %d)", c.FPS)
	}
	if c.Crop != nil {
		if c.Crop.Width <= 0 || c.Crop.Height <= 0 {
			return fmt.Errorf("crop width and height must be positive")
		}
		if c.Crop.X < 0 || c.Crop.Y < 0 {
			return fmt.Errorf("crop x and y must not be negative")
		}
	}
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}
	if c.Audio.MicrophoneGainPct < 0 || c.Audio.MicrophoneGainPct > 400 {
		return fmt.Errorf("microphone_gain_pct must be between 0 and 400")
	}
	return nil
}

// Validate checks the encoder sub-config.
func (e *EncoderConfig) Validate() error {
	if e.OutputPath == "" {
		return fmt.Errorf("output_path must not be empty")
	}
	switch e.Container {
	case ContainerMP4, ContainerMKV, ContainerWebM:
	default:
		return fmt.Errorf("container must be one of mp4, mkv, webm (got %q)", e.Container)
	}
	if e.Codec != "" {
		switch e.Codec {
		case CodecH264, CodecH265, CodecVP9:
		default:
			return fmt.Errorf("codec must be one of h264, h265, vp9 (got %q)", e.Codec)
		}
	}
	switch e.Preference {
	case "", PreferenceAuto, PreferenceNVENC, PreferenceAMF, PreferenceQSV, PreferenceSoftware:
	default:
		return fmt.Errorf("preference must be one of auto, nvenc, amf, qsv, software (got %q)", e.Preference)
	}
	if e.CRF < 0 || e.CRF > 51 {
		return fmt.Errorf("crf must be between 0 and 51 (got %d)", e.CRF)
	}
	switch e.QualityMode {
	case "", QualityPerformance, QualityBalanced, QualityQuality:
	default:
		return fmt.Errorf("quality_mode must be one of performance, balanced, quality (got %q)", e.QualityMode)
	}
	return nil
}

// DefaultConfig returns a SessionConfig with sensible session defaults
// (target/output path are always caller-supplied).
func DefaultConfig() *SessionConfig {
	return &SessionConfig{
		FPS: 30,
		Encoder: EncoderConfig{
			Container:   ContainerMP4,
			Codec:       CodecH264,
			Preference:  PreferenceAuto,
			CRF:         23,
			SpeedPreset: "veryfast",
			QualityMode: QualityBalanced,
		},
		Audio: AudioConfig{
			MicrophoneGainPct: 100,
		},
	}
}

// LoadConfig reads and parses a SessionConfig YAML file.
func LoadConfig(path string) (*SessionConfig, error) {
	// #nosec G304 - path is administrator/user supplied, not web input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save atomically writes the configuration to path: write a temp file in
// the same directory, sync, then rename, so a crash mid-write leaves
// either the old file or the new one, never a partial file.
func (c *SessionConfig) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *SessionConfig) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}
