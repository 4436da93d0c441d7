package pll

// EncodeCells converts a sequence of raw cell bits (as produced by a
// Decoder, or synthesized directly by a codec writer) into flux
// intervals at a fixed nominal cell period — the inverse of the
// flux-to-raw-cell law in §4.2 step 2. Each run of zero bits followed by
// a one bit becomes one flux transition at n*cellNS.
//
// Grounded on the teacher's GenerateFluxTransitions, generalized from a
// fixed 2-bits-per-data-bit MFM assumption to an arbitrary raw cell
// stream shared by MFM/FM/GCR writers.
func EncodeCells(cells []bool, cellNS float64) []float64 {
	var out []float64
	run := 0.0
	for _, bit := range cells {
		run += cellNS
		if bit {
			out = append(out, run)
			run = 0
		}
	}
	if run > 0 {
		// Trailing run with no terminating transition; emit it anyway so
		// callers that need a fixed total duration (e.g. filling a track
		// to a full revolution) can still account for the time.
		out = append(out, run)
	}
	return out
}

// FillRevolution appends further nominal-period transitions to
// intervals until the cumulative duration reaches durationNS, matching
// the teacher's CoverFullRotation helper for padding a written track out
// to a full index-to-index revolution.
func FillRevolution(intervals []float64, cellNS float64, durationNS float64) []float64 {
	var sum float64
	for _, v := range intervals {
		sum += v
	}
	step := 2 * cellNS
	for sum+step <= durationNS {
		intervals = append(intervals, step)
		sum += step
	}
	return intervals
}
