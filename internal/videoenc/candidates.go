// SPDX-License-Identifier: MIT

// Package videoenc implements the Video Encoder Worker (C5): encoder
// candidate selection with fallback, CPU/GPU input pipelines, and
// PTS-monotone packet production into the output container.
package videoenc

// Codec identifies the output video codec.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
	CodecVP9
)

// Preference is the user's encoder-backend preference.
type Preference string

const (
	PreferenceAuto     Preference = "auto"
	PreferenceNVENC    Preference = "nvenc"
	PreferenceAMF      Preference = "amf"
	PreferenceQSV      Preference = "qsv"
	PreferenceSoftware Preference = "software"
)

// Candidate names one encoder to attempt opening and the
// human-readable label of its backend.
type Candidate struct {
	EncoderName string // ffmpeg encoder name, e.g. "h264_nvenc"
	Label       string // human-readable backend label
}

var hwOrder = map[Preference][]string{
	PreferenceNVENC: {"nvenc", "amf", "qsv"},
	PreferenceAMF:   {"amf", "nvenc", "qsv"},
	PreferenceQSV:   {"qsv", "nvenc", "amf"},
	PreferenceAuto:  {"nvenc", "amf", "qsv"},
}

type codecTable struct {
	hw       map[string]string // backend key -> encoder name
	hwLabel  map[string]string
	software []Candidate // software fallbacks in order, software[0] is the "explicit codec" default
}

var tables = map[Codec]codecTable{
	CodecH264: {
		hw: map[string]string{"nvenc": "h264_nvenc", "amf": "h264_amf", "qsv": "h264_qsv"},
		hwLabel: map[string]string{"nvenc": "NVENC", "amf": "AMF", "qsv": "QSV"},
		software: []Candidate{
			{EncoderName: "libx264", Label: "CPU"},
			{EncoderName: "h264", Label: "CPU"},
			{EncoderName: "mpeg4", Label: "CPU"},
		},
	},
	CodecH265: {
		hw: map[string]string{"nvenc": "hevc_nvenc", "amf": "hevc_amf", "qsv": "hevc_qsv"},
		hwLabel: map[string]string{"nvenc": "NVENC", "amf": "AMF", "qsv": "QSV"},
		software: []Candidate{
			{EncoderName: "libx265", Label: "CPU"},
			{EncoderName: "hevc", Label: "CPU"},
		},
	},
	CodecVP9: {
		software: []Candidate{
			{EncoderName: "libvpx-vp9", Label: "CPU"},
			{EncoderName: "vp9", Label: "CPU"},
		},
	},
}

// BuildCandidates returns the ordered encoder-candidate list per spec
// §4.5.1: explicit preference puts that backend first, then the other
// two hardware backends, then software; "software" suppresses hardware
// entirely; "auto" tries all hardware then software. VP9 is always
// software-only regardless of preference. When gpuInput is true,
// software candidates are suppressed (a GPU-texture pipeline has
// nothing to hand a CPU encoder), and only the fallback codecs that
// were not the explicit codec are candidates for mpeg4/h264-family
// fallback — codecExplicit controls whether the mpeg4/h264 raw
// fallbacks beyond libx26x are included at all.
func BuildCandidates(codec Codec, pref Preference, gpuInput bool, codecExplicit bool) []Candidate {
	t := tables[codec]
	var out []Candidate

	if codec != CodecVP9 && pref != PreferenceSoftware {
		order := hwOrder[pref]
		if order == nil {
			order = hwOrder[PreferenceAuto]
		}
		for _, backend := range order {
			name, ok := t.hw[backend]
			if !ok {
				continue
			}
			out = append(out, Candidate{EncoderName: name, Label: t.hwLabel[backend]})
		}
	}

	if gpuInput {
		return out
	}

	for i, c := range t.software {
		// libx264/libx265/libvpx-vp9 (index 0) are always eligible;
		// the bare "h264"/"hevc"/"mpeg4" raw fallbacks are only
		// candidates when the codec was not explicitly requested,
		// per spec §4.5.1 "fallback only when codec was not explicit".
		if i > 0 && codecExplicit {
			continue
		}
		out = append(out, c)
	}
	return out
}
