// SPDX-License-Identifier: MIT

package mux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xmunder/capturist/internal/capterr"
	"github.com/xmunder/capturist/internal/util"
	"github.com/xmunder/capturist/internal/videoenc"
)

// Container mirrors videoenc.Container without importing its encoder
// internals, since mux only needs the muxer-facing facts (extension,
// audio codec choice).
type Container = videoenc.Container

// Job describes one post-session mux.
type Job struct {
	FFmpegBin         string
	VideoTempPath     string // the encoder's closed temp container
	FinalPath         string
	TempDir           string // the session's temp dir; removed on a successful Run
	Container         Container
	Tracks            []Track
	TrackFirstEnabled []int // ms, one per Track, parallel to Tracks
	QualityMode       videoenc.QualityMode
	AudioSyncOffsetMS int
	MP4Faststart      bool
	VideoStartOffsetMS int // from ProbeVideoStartOffsetMS, 0 if unavailable

	// Resources, if set, tracks the ffmpeg child process for the
	// duration of runFFmpeg so a crash mid-mux shows up as a leaked
	// process rather than vanishing silently.
	Resources *util.ResourceTracker
}

func audioCodecArgs(c Container) []string {
	switch c {
	case videoenc.ContainerWebM:
		return []string{"-c:a", "libopus", "-b:a", "128k"}
	default:
		return []string{"-c:a", "aac", "-b:a", "160k"}
	}
}

func videoOnlyPath(videoTemp string) string {
	dir := filepath.Dir(videoTemp)
	ext := filepath.Ext(videoTemp)
	stem := strings.TrimSuffix(filepath.Base(videoTemp), ext)
	return filepath.Join(dir, stem+".video_only"+ext)
}

// Run executes the mux stage per spec §4.7. With no tracks, it
// performs an atomic rename of the video temp into the final path.
// With tracks, it renames the video temp to `.video_only`, invokes
// ffmpeg, and on any failure restores `.video_only` to the final path
// so the user still has a video-only file.
func Run(ctx context.Context, job Job) error {
	if len(job.Tracks) == 0 {
		if err := os.Rename(job.VideoTempPath, job.FinalPath); err != nil {
			return capterr.Wrap(capterr.KindFinalize, err, "mux: rename video-only output")
		}
		cleanupTempDir(job.TempDir)
		return nil
	}

	videoOnly := videoOnlyPath(job.VideoTempPath)
	if err := os.Rename(job.VideoTempPath, videoOnly); err != nil {
		return capterr.Wrap(capterr.KindFinalize, err, "mux: rename to video_only")
	}

	// Non-fatal: a probe failure just leaves VideoStartOffsetMS at
	// whatever the caller set (0 if nothing did).
	if offsetMS, err := ProbeVideoStartOffsetMS(videoOnly); err == nil {
		job.VideoStartOffsetMS = offsetMS
	}

	if err := runFFmpeg(ctx, job, videoOnly); err != nil {
		if restoreErr := os.Rename(videoOnly, job.FinalPath); restoreErr != nil {
			return capterr.Merge(capterr.KindFinalize, err, restoreErr)
		}
		return capterr.Wrap(capterr.KindFinalize, err, "mux: ffmpeg failed, restored video-only output")
	}
	cleanupTempDir(job.TempDir)
	return nil
}

// cleanupTempDir removes the session's temp directory after a
// successful Run — the per-session WAV side-files and the consumed
// video_only remnant all live here.
func cleanupTempDir(dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

func delays(job Job) []int {
	d := make([]int, len(job.Tracks))
	for i := range job.Tracks {
		fe := 0
		if i < len(job.TrackFirstEnabled) {
			fe = job.TrackFirstEnabled[i]
		}
		d[i] = EffectiveDelay(fe, job.AudioSyncOffsetMS, job.VideoStartOffsetMS)
	}
	return d
}

func buildArgs(job Job, videoOnly string) []string {
	args := []string{"-y", "-i", videoOnly}
	for _, t := range job.Tracks {
		args = append(args, "-i", t.Path)
	}
	args = append(args, "-c:v", "copy", "-shortest")

	ds := delays(job)
	if !Bypass(job.Tracks, ds, job.QualityMode) {
		args = append(args, "-filter_complex", FilterGraph(job.Tracks, ds, job.QualityMode), "-map", "0:v", "-map", "[aout]")
	} else {
		args = append(args, "-map", "0:v", "-map", "1:a")
	}
	args = append(args, audioCodecArgs(job.Container)...)

	if job.Container == videoenc.ContainerMP4 && job.MP4Faststart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, job.FinalPath)
	return args
}

func runFFmpeg(ctx context.Context, job Job, videoOnly string) error {
	bin := job.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	args := buildArgs(job, videoOnly)

	cmd := newCommand(ctx, bin, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	procName := "ffmpeg-mux-" + strconv.Itoa(cmd.Process.Pid)
	if job.Resources != nil {
		job.Resources.TrackProcess(procName, cmd.Process)
	}
	err := cmd.Wait()
	if job.Resources != nil {
		job.Resources.UntrackProcess(procName)
	}
	if err != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, firstLines(stderr.String(), 20))
	}
	return nil
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// EnvAudioSyncOffsetMS parses CAPTURIST_AUDIO_SYNC_OFFSET_MS, capped
// at 1000 ms per spec §6; an unset or invalid value yields 0.
func EnvAudioSyncOffsetMS(raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}
