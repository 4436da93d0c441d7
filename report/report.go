// Package report builds the quality and diagnostic summary of a
// completed scan or recovery session: per-track letter grades, an
// overall disk score, a categorized error tally, and a heat-map grid
// for a UI to render, per §4.10. No teacher file plays this role (the
// teacher never scored a read), so the scoring and JSON shape here are
// new, grounded on the analyzer package's 0..1 Quality metric and
// sector.Status for the error taxonomy; serialization uses the standard
// library's encoding/json, since none of the example repos carry a
// JSON library of their own for simple report-shaped output.
package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sergev/fluxkit/sector"
)

// Grade is a letter grade derived from a 0..100 quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFromScore maps a 0..100 score to a letter grade per §4.10's
// thresholds: A >= 90, B >= 75, C >= 60, D >= 40, else F.
func GradeFromScore(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 75:
		return GradeB
	case score >= 60:
		return GradeC
	case score >= 40:
		return GradeD
	default:
		return GradeF
	}
}

// ErrorCategory enumerates the sector-level problems §4.10 tracks.
type ErrorCategory string

const (
	ErrorCRC       ErrorCategory = "CRC"
	ErrorMissing   ErrorCategory = "Missing"
	ErrorWeak      ErrorCategory = "Weak"
	ErrorNoAddress ErrorCategory = "NoAddress"
	ErrorHeaderCRC ErrorCategory = "HeaderCRC"
	ErrorDeleted   ErrorCategory = "Deleted"
)

// categorize maps a sector's status to its error category, or "" if the
// sector isn't an error (Good/Recovered).
func categorize(s sector.Sector) ErrorCategory {
	switch s.Status {
	case sector.Bad:
		return ErrorCRC
	case sector.Missing:
		return ErrorMissing
	case sector.Weak:
		return ErrorWeak
	case sector.NoAddress:
		return ErrorNoAddress
	case sector.HeaderCRC:
		return ErrorHeaderCRC
	case sector.Deleted:
		return ErrorDeleted
	default:
		return ""
	}
}

// TrackReport is one cylinder/head's score and status breakdown.
type TrackReport struct {
	Cylinder int     `json:"cylinder"`
	Head     int     `json:"head"`
	Score    float64 `json:"score"`
	Grade    Grade   `json:"grade"`
}

// HeatCell is one (cylinder, sector) cell of the heat map.
type HeatCell struct {
	Status sector.Status `json:"status"`
}

// Report is the complete quality summary of a disk read, serialized as
// JSON for the CLI's --out report.json and for a future UI to consume.
type Report struct {
	Geometry     sector.Geometry         `json:"geometry"`
	OverallScore float64                 `json:"overall_score"`
	OverallGrade Grade                   `json:"overall_grade"`
	Tracks       []TrackReport           `json:"tracks"`
	ErrorCounts  map[ErrorCategory]int   `json:"error_counts"`
	HeatMap      [][]HeatCell            `json:"heat_map"` // rows = cylinders, columns = sector-id*heads
}

// Build computes a Report from a completed table. Each track's score is
// the mean of its sectors' Quality (0..1, scaled to 0..100); sectors
// that never reached a terminal status contribute a score of 0, except
// Weak sectors, which keep their scaled Quality.
func Build(table *sector.Table) Report {
	geo := table.Geometry()
	trackSum := make(map[[2]int]float64)
	trackCount := make(map[[2]int]int)
	errorCounts := make(map[ErrorCategory]int)

	heatMap := make([][]HeatCell, geo.Cylinders)
	for c := range heatMap {
		heatMap[c] = make([]HeatCell, geo.Heads*geo.SectorsPerTrack)
	}

	table.Each(func(s sector.Sector) {
		key := [2]int{s.Addr.Cylinder, s.Addr.Head}
		score := s.Quality * 100
		if !s.Status.Terminal() && s.Status != sector.Weak {
			score = 0
		}
		trackSum[key] += score
		trackCount[key]++

		if cat := categorize(s); cat != "" {
			errorCounts[cat]++
		}

		col := s.Addr.Head*geo.SectorsPerTrack + (s.Addr.SectorID - 1)
		heatMap[s.Addr.Cylinder][col] = HeatCell{Status: s.Status}
	})

	var tracks []TrackReport
	var overallSum float64
	for cyl := 0; cyl < geo.Cylinders; cyl++ {
		for head := 0; head < geo.Heads; head++ {
			key := [2]int{cyl, head}
			n := trackCount[key]
			score := 0.0
			if n > 0 {
				score = trackSum[key] / float64(n)
			}
			tracks = append(tracks, TrackReport{Cylinder: cyl, Head: head, Score: score, Grade: GradeFromScore(score)})
			overallSum += score
		}
	}

	overall := 0.0
	if len(tracks) > 0 {
		overall = overallSum / float64(len(tracks))
	}

	return Report{
		Geometry:     geo,
		OverallScore: overall,
		OverallGrade: GradeFromScore(overall),
		Tracks:       tracks,
		ErrorCounts:  errorCounts,
		HeatMap:      heatMap,
	}
}

// WriteJSON serializes r to filename as indented JSON.
func WriteJSON(filename string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", filename, err)
	}
	return nil
}
