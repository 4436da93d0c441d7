package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sergev/fluxkit/sector"
)

func TestGradeFromScoreThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  Grade
	}{
		{95, GradeA}, {90, GradeA},
		{80, GradeB}, {75, GradeB},
		{65, GradeC}, {60, GradeC},
		{45, GradeD}, {40, GradeD},
		{39, GradeF}, {0, GradeF},
	}
	for _, c := range cases {
		if got := GradeFromScore(c.score); got != c.want {
			t.Errorf("GradeFromScore(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestBuildAllGoodYieldsGradeA(t *testing.T) {
	geo := sector.Geometry{Name: "t", Cylinders: 2, Heads: 1, SectorsPerTrack: 2, SectorSize: 128, RPM: 300, DataRateKbps: 250}
	table := sector.NewTable(geo)
	table.Each(func(s sector.Sector) {
		table.Update(s.Linear, func(cur *sector.Sector) {
			cur.Status = sector.Good
			cur.Quality = 0.99
		})
	})

	r := Build(table)
	if r.OverallGrade != GradeA {
		t.Fatalf("expected overall grade A, got %v (score %v)", r.OverallGrade, r.OverallScore)
	}
	if len(r.Tracks) != geo.Cylinders*geo.Heads {
		t.Fatalf("expected %d track reports, got %d", geo.Cylinders*geo.Heads, len(r.Tracks))
	}
	if len(r.ErrorCounts) != 0 {
		t.Fatalf("expected no error categories, got %+v", r.ErrorCounts)
	}
}

func TestBuildTracksBadSectorsAsErrors(t *testing.T) {
	geo := sector.Geometry{Name: "t", Cylinders: 1, Heads: 1, SectorsPerTrack: 2, SectorSize: 128, RPM: 300, DataRateKbps: 250}
	table := sector.NewTable(geo)
	table.Update(0, func(cur *sector.Sector) { cur.Status = sector.Bad })
	table.Update(1, func(cur *sector.Sector) { cur.Status = sector.Good; cur.Quality = 1.0 })

	r := Build(table)
	if r.ErrorCounts[ErrorCRC] != 1 {
		t.Fatalf("expected one CRC error, got %+v", r.ErrorCounts)
	}
	if len(r.HeatMap) != 1 || len(r.HeatMap[0]) != 2 {
		t.Fatalf("unexpected heat map shape: %+v", r.HeatMap)
	}
}

func TestWriteJSONProducesValidJSON(t *testing.T) {
	geo := sector.Geometry{Name: "t", Cylinders: 1, Heads: 1, SectorsPerTrack: 1, SectorSize: 128, RPM: 300, DataRateKbps: 250}
	table := sector.NewTable(geo)
	r := Build(table)

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(path, r); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Geometry != geo {
		t.Fatalf("geometry did not round-trip: got %+v want %+v", decoded.Geometry, geo)
	}
}
