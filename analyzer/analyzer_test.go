package analyzer

import (
	"math"
	"math/rand"
	"testing"
)

func syntheticMFMIntervals(n int, cellNS float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	cells := []float64{2, 3, 4}
	out := make([]float64, n)
	for i := range out {
		c := cells[i%3]
		out[i] = c*cellNS + rng.NormFloat64()*cellNS*0.03
	}
	return out
}

func TestBuildHistogramCountsAllSamples(t *testing.T) {
	intervals := syntheticMFMIntervals(500, 1000, 1)
	h := BuildHistogram(intervals)
	if h.Total != len(intervals) {
		t.Fatalf("histogram total = %d, want %d", h.Total, len(intervals))
	}
}

func TestFindPeaksDetectsThreeMFMClusters(t *testing.T) {
	intervals := syntheticMFMIntervals(2000, 1000, 2)
	h := BuildHistogram(intervals)
	peaks := h.FindPeaks(5)
	if len(peaks) != 3 {
		t.Fatalf("found %d peaks, want 3 for MFM 2T/3T/4T population: %+v", len(peaks), peaks)
	}
	for i := 1; i < len(peaks); i++ {
		if peaks[i].CenterNS <= peaks[i-1].CenterNS {
			t.Fatalf("peaks not in increasing order: %+v", peaks)
		}
	}
}

func TestDetectEncodingMFM(t *testing.T) {
	intervals := syntheticMFMIntervals(2000, 1000, 3)
	m := Analyze(intervals)
	if m.Encoding != MFM {
		t.Fatalf("detected encoding %v, want MFM", m.Encoding)
	}
	if m.Quality <= 0.5 {
		t.Errorf("expected reasonably high quality for clean synthetic MFM flux, got %v", m.Quality)
	}
}

func TestDetectEncodingFM(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	cells := []float64{1, 2}
	intervals := make([]float64, 1000)
	for i := range intervals {
		c := cells[i%2]
		intervals[i] = c*1000 + rng.NormFloat64()*30
	}
	m := Analyze(intervals)
	if m.Encoding != FM {
		t.Fatalf("detected encoding %v, want FM", m.Encoding)
	}
}

func TestNoisyFluxLowersQuality(t *testing.T) {
	clean := syntheticMFMIntervals(1000, 1000, 5)

	rng := rand.New(rand.NewSource(6))
	noisy := make([]float64, len(clean))
	for i, v := range clean {
		noisy[i] = v + rng.NormFloat64()*v*0.25
	}

	cleanQ := Analyze(clean).Quality
	noisyQ := Analyze(noisy).Quality
	if noisyQ >= cleanQ {
		t.Errorf("expected noisy capture to score lower: clean=%v noisy=%v", cleanQ, noisyQ)
	}
}

func TestJitterZeroForPerfectSignal(t *testing.T) {
	intervals := make([]float64, 300)
	for i := range intervals {
		intervals[i] = 2000 // single perfect peak
	}
	h := BuildHistogram(intervals)
	peaks := h.FindPeaks(5)
	jitter := rmsJitterToNearestPeak(intervals, peaks)
	if math.Abs(jitter) > 1e-6 {
		t.Errorf("expected zero jitter for a single exact-period signal, got %v", jitter)
	}
}
