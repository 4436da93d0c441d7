// Package analyzer turns a raw flux capture into a histogram, detected
// encoding, and quality metrics, the diagnostic layer the scan
// orchestrator and reporting consult before committing to a PLL
// configuration for a track. It has no direct teacher analogue: the
// teacher always assumed MFM at a known bit rate. Histogram-based peak
// detection and SNR/jitter scoring are modeled on how the pll package's
// Decoder.Step already reasons about clamp-hit ratios, generalized into a
// standalone pre-decode analysis pass.
package analyzer

import (
	"math"
	"sort"
)

const binWidthNS = 50

// Histogram buckets flux interval durations into fixed-width bins.
type Histogram struct {
	BinWidthNS int
	Counts     map[int]int // bin index -> count
	Total      int
}

// BuildHistogram bins a slice of flux intervals (nanoseconds).
func BuildHistogram(intervalsNS []float64) Histogram {
	h := Histogram{BinWidthNS: binWidthNS, Counts: make(map[int]int)}
	for _, v := range intervalsNS {
		bin := int(v) / binWidthNS
		h.Counts[bin]++
		h.Total++
	}
	return h
}

// Peak is a detected cluster of flux intervals around a characteristic
// period.
type Peak struct {
	CenterNS float64
	Sigma    float64
	Weight   float64 // fraction of total samples under this peak
}

// FindPeaks locates up to maxPeaks local maxima in the histogram and
// fits each with a simple two-parameter Gaussian (mean, sigma) over a
// ±3σ window seeded from the bin's neighbors, capped at 5 peaks since no
// supported encoding needs more to characterize its cell population.
func (h Histogram) FindPeaks(maxPeaks int) []Peak {
	if maxPeaks > 5 {
		maxPeaks = 5
	}
	if len(h.Counts) == 0 {
		return nil
	}

	bins := make([]int, 0, len(h.Counts))
	for b := range h.Counts {
		bins = append(bins, b)
	}
	sort.Ints(bins)

	type candidate struct {
		bin   int
		count int
	}
	var candidates []candidate
	for _, b := range bins {
		c := h.Counts[b]
		if c >= h.Counts[b-1] && c >= h.Counts[b+1] && c > 0 {
			candidates = append(candidates, candidate{b, c})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })
	if len(candidates) > maxPeaks {
		candidates = candidates[:maxPeaks]
	}

	var peaks []Peak
	for _, c := range candidates {
		mean, sigma, weight := h.fitGaussian(c.bin)
		peaks = append(peaks, Peak{CenterNS: mean, Sigma: sigma, Weight: weight})
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].CenterNS < peaks[j].CenterNS })
	return peaks
}

// fitGaussian estimates a peak's mean and standard deviation from the
// weighted bin population within a window around centerBin, widening
// until it has accumulated the typical ±3σ envelope or run out of
// adjacent occupied bins.
func (h Histogram) fitGaussian(centerBin int) (mean, sigma, weight float64) {
	const window = 6 // bins either side, ~300ns at 50ns bins
	var sum, sumSq, total float64
	for b := centerBin - window; b <= centerBin+window; b++ {
		c := float64(h.Counts[b])
		if c == 0 {
			continue
		}
		center := (float64(b) + 0.5) * binWidthNS
		sum += center * c
		sumSq += center * center * c
		total += c
	}
	if total == 0 {
		return float64(centerBin) * binWidthNS, binWidthNS, 0
	}
	mean = sum / total
	variance := sumSq/total - mean*mean
	if variance < 0 {
		variance = 0
	}
	sigma = math.Sqrt(variance)
	if sigma < 1 {
		sigma = binWidthNS / 2
	}
	if h.Total > 0 {
		weight = total / float64(h.Total)
	}
	return mean, sigma, weight
}

// Encoding is the family of encodings DetectEncoding can identify from a
// peak population, mirroring pll.Encoding's three families plus an
// "unknown" fallback for a population that fits none of them.
type Encoding int

const (
	Unknown Encoding = iota
	MFM
	FM
	GCR
)

func (e Encoding) String() string {
	switch e {
	case MFM:
		return "mfm"
	case FM:
		return "fm"
	case GCR:
		return "gcr"
	default:
		return "unknown"
	}
}

// DetectEncoding classifies a peak population by its ratio pattern: MFM
// shows three peaks near a 2:3:4 ratio, FM shows two near 1:2, and four
// or more peaks indicates GCR's lack of a regular clock bit.
func DetectEncoding(peaks []Peak) Encoding {
	switch len(peaks) {
	case 2:
		ratio := peaks[1].CenterNS / peaks[0].CenterNS
		if ratio > 1.7 && ratio < 2.3 {
			return FM
		}
	case 3:
		r1 := peaks[1].CenterNS / peaks[0].CenterNS
		r2 := peaks[2].CenterNS / peaks[0].CenterNS
		if r1 > 1.3 && r1 < 1.7 && r2 > 1.8 && r2 < 2.2 {
			return MFM
		}
	default:
		if len(peaks) >= 4 {
			return GCR
		}
	}
	return Unknown
}

// Metrics summarizes one track capture's signal quality, feeding both
// the recovery controller's strategy selection and report's heat map.
type Metrics struct {
	Encoding    Encoding
	JitterRMSNS float64
	SNR         float64 // peak separation over combined sigma
	Quality     float64 // 0..1 weighted composite score
}

// Analyze runs the full pipeline: histogram, peak fit, encoding
// detection, jitter and SNR, and a composite quality score.
func Analyze(intervalsNS []float64) Metrics {
	hist := BuildHistogram(intervalsNS)
	peaks := hist.FindPeaks(5)
	enc := DetectEncoding(peaks)

	jitter := rmsJitterToNearestPeak(intervalsNS, peaks)
	snr := signalToNoise(peaks)
	quality := compositeQuality(enc, jitter, snr, peaks)

	return Metrics{Encoding: enc, JitterRMSNS: jitter, SNR: snr, Quality: quality}
}

func rmsJitterToNearestPeak(intervalsNS []float64, peaks []Peak) float64 {
	if len(peaks) == 0 || len(intervalsNS) == 0 {
		return 0
	}
	// Deviations are taken from the mean of the intervals nearest each
	// peak, so the bin quantization in CenterNS does not count as jitter.
	nearest := make([]int, len(intervalsNS))
	sums := make([]float64, len(peaks))
	counts := make([]float64, len(peaks))
	for i, v := range intervalsNS {
		best := math.Inf(1)
		for j, p := range peaks {
			d := v - p.CenterNS
			if math.Abs(d) < math.Abs(best) {
				best, nearest[i] = d, j
			}
		}
		sums[nearest[i]] += v
		counts[nearest[i]]++
	}
	var sumSq float64
	for i, v := range intervalsNS {
		d := v - sums[nearest[i]]/counts[nearest[i]]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(intervalsNS)))
}

func signalToNoise(peaks []Peak) float64 {
	if len(peaks) < 2 {
		return 0
	}
	var minSeparation, avgSigma float64
	minSeparation = math.Inf(1)
	for i := 1; i < len(peaks); i++ {
		sep := peaks[i].CenterNS - peaks[i-1].CenterNS
		if sep < minSeparation {
			minSeparation = sep
		}
	}
	for _, p := range peaks {
		avgSigma += p.Sigma
	}
	avgSigma /= float64(len(peaks))
	if avgSigma == 0 {
		return 0
	}
	return minSeparation / avgSigma
}

func compositeQuality(enc Encoding, jitterNS, snr float64, peaks []Peak) float64 {
	if enc == Unknown || len(peaks) == 0 {
		return 0
	}
	nominal := peaks[0].CenterNS
	if nominal <= 0 {
		return 0
	}
	jitterScore := clamp01(1 - jitterNS/(nominal*0.3))
	snrScore := clamp01(snr / 6)
	return 0.6*jitterScore + 0.4*snrScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
