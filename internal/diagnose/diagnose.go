// SPDX-License-Identifier: MIT

// Package diagnose implements the process-wide diagnostics surface:
// ffmpeg binary discovery (spec §6's CAPTURIST_FFMPEG_BIN/FFMPEG_DIR),
// the cached per-process video-encoder capability probe behind
// get_video_encoder_capabilities, and a per-session resource usage
// snapshot for Live Status, mirroring the teacher's
// internal/diagnostics check-runner and internal/health package,
// reshaped from Linux/ALSA system checks onto this module's Windows
// capture surface.
package diagnose

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

// FindFFmpeg resolves the ffmpeg binary path per spec §6: an explicit
// CAPTURIST_FFMPEG_BIN wins outright; otherwise FFMPEG_DIR is searched
// for bin/ffmpeg(.exe) then ffmpeg(.exe) directly; otherwise PATH is
// searched. ffmpegDir is returned alongside so callers (outputpath's
// temp-directory staging) can place files next to the binary.
func FindFFmpeg(getenv func(string) string) (bin string, ffmpegDir string, err error) {
	exe := "ffmpeg"
	if runtime.GOOS == "windows" {
		exe = "ffmpeg.exe"
	}

	if explicit := getenv("CAPTURIST_FFMPEG_BIN"); explicit != "" {
		if _, statErr := os.Stat(explicit); statErr != nil {
			return "", "", fmt.Errorf("diagnose: CAPTURIST_FFMPEG_BIN set but not found: %w", statErr)
		}
		return explicit, filepath.Dir(explicit), nil
	}

	if dir := getenv("FFMPEG_DIR"); dir != "" {
		for _, candidate := range []string{filepath.Join(dir, "bin", exe), filepath.Join(dir, exe)} {
			if _, statErr := os.Stat(candidate); statErr == nil {
				return candidate, dir, nil
			}
		}
		return "", "", fmt.Errorf("diagnose: FFMPEG_DIR=%s does not contain %s", dir, exe)
	}

	if path, lookErr := exec.LookPath(exe); lookErr == nil {
		return path, filepath.Dir(path), nil
	}
	return "", "", fmt.Errorf("diagnose: ffmpeg not found on PATH, and neither CAPTURIST_FFMPEG_BIN nor FFMPEG_DIR is set")
}

// EncoderCapabilities is the get_video_encoder_capabilities() result:
// one bool per backend, each found by actually opening that backend's
// encoder at a canonical 1280x720@30 configuration (spec §6).
type EncoderCapabilities struct {
	NVENC    bool
	AMF      bool
	QSV      bool
	Software bool
}

// probeEncoders names the ffmpeg encoder probed for each of the four backends
// this module ever selects (see internal/videoenc/candidates.go).
var probeEncoders = []struct {
	field string
	name  string
}{
	{"nvenc", "h264_nvenc"},
	{"amf", "h264_amf"},
	{"qsv", "h264_qsv"},
	{"software", "libx264"},
}

// CapabilityCache probes each encoder backend once per process and
// caches the result, per spec §6's "results must be cached
// per-process" requirement.
type CapabilityCache struct {
	ffmpegBin string

	once   sync.Once
	result EncoderCapabilities
}

// NewCapabilityCache returns a cache that probes ffmpegBin.
func NewCapabilityCache(ffmpegBin string) *CapabilityCache {
	return &CapabilityCache{ffmpegBin: ffmpegBin}
}

// Get returns the cached EncoderCapabilities, probing on first call.
func (c *CapabilityCache) Get(ctx context.Context) EncoderCapabilities {
	c.once.Do(func() {
		c.result = EncoderCapabilities{
			NVENC:    c.probe(ctx, "h264_nvenc"),
			AMF:      c.probe(ctx, "h264_amf"),
			QSV:      c.probe(ctx, "h264_qsv"),
			Software: c.probe(ctx, "libx264"),
		}
	})
	return c.result
}

// probe opens encoder against a one-frame null-muxer render at the
// canonical 1280x720@30 configuration the spec names, succeeding only
// if ffmpeg's own encoder-open path accepts it.
func (c *CapabilityCache) probe(ctx context.Context, encoder string) bool {
	if c.ffmpegBin == "" {
		return false
	}
	cmd := exec.CommandContext(ctx, c.ffmpegBin,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=size=1280x720:rate=30:duration=0.1",
		"-c:v", encoder,
		"-frames:v", "1",
		"-f", "null", "-",
	)
	return cmd.Run() == nil
}
