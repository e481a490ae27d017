// SPDX-License-Identifier: MIT

// Package mux implements the Mux Stage (C7): after the encoder
// closes, builds an FFmpeg audio filter-graph and invokes an external
// ffmpeg binary to combine video and audio tracks into the final
// output.
package mux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xmunder/capturist/internal/videoenc"
)

// Source identifies an audio track's origin.
type Source int

const (
	SourceSystem Source = iota
	SourceMicrophone
)

// Track is one AudioTrackInput ready for mux.
type Track struct {
	Path     string
	Source   Source
	DelayMS  int
	GainPct  int // 100 = unity; 0 is treated as 100; formatGain clamps to [0, 1600]
}

func clampDelay(ms int) int {
	if ms < 0 {
		return 0
	}
	if ms > 1000 {
		return 1000
	}
	return ms
}

// EffectiveDelay combines a track's recorded first-enable offset with
// a capped system-wide sync offset and a capped detected video-start
// offset, per spec §4.7.1.
func EffectiveDelay(trackFirstEnabledMS, audioSyncOffsetMS, videoStartOffsetMS int) int {
	return trackFirstEnabledMS + clampDelay(audioSyncOffsetMS) + clampDelay(videoStartOffsetMS)
}

func needsResync(delayMS int, source Source, mode videoenc.QualityMode) bool {
	return delayMS > 0 || source == SourceMicrophone || mode != videoenc.QualityPerformance
}

func formatGain(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1600 {
		pct = 1600
	}
	v := float64(pct) / 100.0
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}

// micDSP returns the microphone-only DSP chain for the given quality
// mode, or "" if none applies.
func micDSP(mode videoenc.QualityMode) string {
	switch mode {
	case videoenc.QualityQuality:
		return "highpass=120,lowpass=9000,afftdn=nr=18:tn=1:noise-floor=-32,agate=threshold=0.015:ratio=3:attack=20:release=250"
	case videoenc.QualityBalanced:
		return "highpass=120,lowpass=9000"
	default:
		return ""
	}
}

// postMixDSP returns the system-audio-bus post-mix DSP chain, skipped
// in performance mode.
func postMixDSP(mode videoenc.QualityMode) string {
	if mode == videoenc.QualityPerformance {
		return ""
	}
	return "highpass=80,lowpass=14000"
}

// trackChain builds one track's per-input filter chain (resync prefix
// + delay + DSP + gain), without a trailing label.
func trackChain(t Track, delayMS int, mode videoenc.QualityMode) string {
	var stages []string
	if needsResync(delayMS, t.Source, mode) {
		stages = append(stages, "aresample=async=1:first_pts=0", "asetpts=PTS-STARTPTS")
	}
	if delayMS > 0 {
		stages = append(stages, fmt.Sprintf("adelay=%d|%d", delayMS, delayMS))
	}
	if t.Source == SourceMicrophone {
		if d := micDSP(mode); d != "" {
			stages = append(stages, d)
		}
	}
	gain := t.GainPct
	if gain == 0 {
		gain = 100
	}
	if gain != 100 {
		stages = append(stages, "volume="+formatGain(gain))
	}
	if len(stages) == 0 {
		return "anull"
	}
	return strings.Join(stages, ",")
}

// Bypass reports whether the filter graph can be skipped entirely and
// the single system track mapped directly, per spec §4.7.1's
// single-track bypass rule.
func Bypass(tracks []Track, delays []int, mode videoenc.QualityMode) bool {
	if len(tracks) != 1 || tracks[0].Source != SourceSystem {
		return false
	}
	if delays[0] != 0 {
		return false
	}
	gain := tracks[0].GainPct
	if gain == 0 {
		gain = 100
	}
	if gain != 100 {
		return false
	}
	return mode == videoenc.QualityPerformance || mode == videoenc.QualityBalanced
}

// FilterGraph builds the complete -filter_complex expression for the
// given tracks (delays are the already-EffectiveDelay-computed values,
// one per track, in input order starting at audio input index 1 —
// input 0 is always the video-only file).
func FilterGraph(tracks []Track, delays []int, mode videoenc.QualityMode) string {
	var parts []string

	if len(tracks) == 1 {
		// A single track's prefix+DSP chain feeds [aout] directly;
		// the post-mix DSP bus only applies when tracks are mixed.
		parts = append(parts, fmt.Sprintf("[1:a]%s[aout]", trackChain(tracks[0], delays[0], mode)))
		return strings.Join(parts, ";")
	}

	labels := make([]string, len(tracks))
	for i, t := range tracks {
		label := fmt.Sprintf("a%d", i)
		labels[i] = label
		parts = append(parts, fmt.Sprintf("[%d:a]%s[%s]", i+1, trackChain(t, delays[i], mode), label))
	}

	in := make([]string, len(labels))
	for i, l := range labels {
		in[i] = "[" + l + "]"
	}
	mixLabel := "mix"
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:normalize=0:dropout_transition=2[%s]", strings.Join(in, ""), len(labels), mixLabel))

	if dsp := postMixDSP(mode); dsp != "" {
		parts = append(parts, fmt.Sprintf("[%s]%s[aout]", mixLabel, dsp))
	} else {
		parts = append(parts, fmt.Sprintf("[%s]anull[aout]", mixLabel))
	}

	return strings.Join(parts, ";")
}
