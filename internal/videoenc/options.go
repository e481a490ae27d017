// SPDX-License-Identifier: MIT

package videoenc

import (
	"fmt"
)

// QualityMode drives bitrate/GOP/rc derivation.
type QualityMode int

const (
	QualityPerformance QualityMode = iota
	QualityBalanced
	QualityQuality
)

// Backend names the encoder family an options set targets.
type Backend int

const (
	BackendNVENC Backend = iota
	BackendAMF
	BackendQSV
	BackendSoftwareH26x
	BackendSoftwareVP9
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GOPSize returns clamp(2*fps, 30, 300), per spec §4.5.2.
func GOPSize(fps int) int {
	return clampInt(2*fps, 30, 300)
}

var bppByMode = map[QualityMode]float64{
	QualityPerformance: 0.055,
	QualityBalanced:    0.075,
	QualityQuality:     0.10,
}

var codecFactor = map[Codec]float64{
	CodecH264: 1.0,
	CodecH265: 0.72,
	CodecVP9:  0.68,
}

var maxratePct = map[QualityMode]int{
	QualityPerformance: 100,
	QualityBalanced:    125,
	QualityQuality:     140,
}

var bufsizePct = map[QualityMode]int{
	QualityPerformance: 50,
	QualityBalanced:    100,
	QualityQuality:     130,
}

// Bitrates holds the derived target/maxrate/bufsize, all in kbps.
type Bitrates struct {
	TargetKbps  int
	MaxrateKbps int
	BufsizeKbps int
}

// DeriveBitrates implements spec §4.5.2's bitrate formula.
func DeriveBitrates(w, h, fps int, mode QualityMode, codec Codec) Bitrates {
	bpp := bppByMode[mode]
	cf := codecFactor[codec]
	target := int(float64(w*h*fps)*bpp*cf) / 1000
	target = clampInt(target, 2500, 80000)
	return Bitrates{
		TargetKbps:  target,
		MaxrateKbps: target * maxratePct[mode] / 100,
		BufsizeKbps: target * bufsizePct[mode] / 100,
	}
}

// Options is a flattened, backend-specific ffmpeg private-option set,
// built as data (spec §9: "implement it as data… separate from the
// open function") so the open function just iterates key/value pairs.
type Options struct {
	Entries []Option
}

// Option is one ffmpeg AVOption key/value pair.
type Option struct {
	Key   string
	Value string
}

func (o *Options) set(key, value string) {
	o.Entries = append(o.Entries, Option{Key: key, Value: value})
}

// DeriveOptions implements spec §4.5.2 per backend.
func DeriveOptions(backend Backend, codec Codec, mode QualityMode, crf int, speedPreset string, fps, w, h int) Options {
	var o Options
	br := DeriveBitrates(w, h, fps, mode, codec)

	switch backend {
	case BackendNVENC:
		preset := map[QualityMode]string{QualityPerformance: "p3", QualityBalanced: "p5", QualityQuality: "p6"}[mode]
		o.set("preset", preset)
		if mode == QualityPerformance {
			o.set("rc", "cbr")
		} else {
			o.set("rc", "vbr")
			o.set("cq", fmt.Sprintf("%d", shiftCRF(crf, mode)))
		}
		o.set("tune", map[QualityMode]string{QualityPerformance: "ull", QualityBalanced: "ll", QualityQuality: "hq"}[mode])
		if mode == QualityQuality {
			o.set("spatial-aq", "1")
			o.set("temporal-aq", "1")
		}
		o.set("b", fmt.Sprintf("%dk", br.TargetKbps))
		o.set("maxrate", fmt.Sprintf("%dk", br.MaxrateKbps))
		o.set("bufsize", fmt.Sprintf("%dk", br.BufsizeKbps))

	case BackendAMF:
		o.set("quality", map[QualityMode]string{QualityPerformance: "speed", QualityBalanced: "balanced", QualityQuality: "quality"}[mode])
		o.set("usage", map[QualityMode]string{QualityPerformance: "ultralowlatency", QualityBalanced: "lowlatency", QualityQuality: "transcoding"}[mode])
		o.set("rc", "cbr")
		o.set("b", fmt.Sprintf("%dk", br.TargetKbps))
		o.set("maxrate", fmt.Sprintf("%dk", br.MaxrateKbps))
		o.set("bufsize", fmt.Sprintf("%dk", br.BufsizeKbps))

	case BackendQSV:
		if mode == QualityPerformance {
			o.set("low_power", "1")
			o.set("async_depth", "1")
		} else {
			gq := crf
			if gq > 40 {
				gq = 40
			}
			o.set("global_quality", fmt.Sprintf("%d", gq))
		}
		o.set("b", fmt.Sprintf("%dk", br.TargetKbps))
		o.set("maxrate", fmt.Sprintf("%dk", br.MaxrateKbps))
		o.set("bufsize", fmt.Sprintf("%dk", br.BufsizeKbps))

	case BackendSoftwareH26x:
		o.set("crf", fmt.Sprintf("%d", crf))
		o.set("preset", speedPreset)
		o.set("tune", "zerolatency")

	case BackendSoftwareVP9:
		o.set("crf", fmt.Sprintf("%d", crf))
		o.set("b", "0")
		o.set("deadline", "realtime")
		o.set("cpu-used", "8")
	}
	return o
}

// shiftCRF maps a CRF (lower = higher quality) onto NVENC's cq scale,
// shifting it down by 4 (performance), 2 (balanced) or 0 (quality),
// clamped to [0, 51]; "quality" uses the raw CRF unchanged.
func shiftCRF(crf int, mode QualityMode) int {
	shift := map[QualityMode]int{QualityPerformance: 4, QualityBalanced: 2, QualityQuality: 0}[mode]
	return clampInt(crf-shift, 0, 51)
}
