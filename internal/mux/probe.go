// SPDX-License-Identifier: MIT

package mux

import (
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ProbeVideoStartOffsetMS reads the video file's first video track
// start_time (falling back to its earliest sample decode time) and
// returns it in milliseconds, capped to 1000 ms per spec §4.7.1. A
// probing failure is non-fatal — callers should treat the returned
// error as "use 0" rather than aborting the mux.
func ProbeVideoStartOffsetMS(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("mux: open %s for start-time probe: %w", path, err)
	}
	defer f.Close()

	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		return 0, fmt.Errorf("mux: decode %s: %w", path, err)
	}
	if parsed.Moov == nil {
		return 0, fmt.Errorf("mux: %s has no moov box", path)
	}

	for _, trak := range parsed.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
			continue
		}
		if trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		timescale := trak.Mdia.Mdhd.Timescale
		if timescale == 0 {
			continue
		}
		var startUnits uint64
		if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stts != nil {
			// The first entry's sample delta list starts at decode
			// time 0 by construction; edts/elst (if present) is what
			// actually shifts presentation relative to the moov
			// start, so prefer it when available.
			startUnits = 0
		}
		if trak.Edts != nil && trak.Edts.Elst != nil && len(trak.Edts.Elst.Entries) > 0 {
			e := trak.Edts.Elst.Entries[0]
			if e.MediaTime > 0 {
				startUnits = uint64(e.MediaTime)
			}
		}
		ms := int(startUnits * 1000 / uint64(timescale))
		if ms > 1000 {
			ms = 1000
		}
		return ms, nil
	}
	return 0, fmt.Errorf("mux: %s has no video track", path)
}
