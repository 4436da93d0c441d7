package imagefmt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sergev/fluxkit/sector"
)

func TestWriteReadIMGRoundTrip(t *testing.T) {
	geo := sector.Presets["ibm360"]
	table := sector.NewTable(geo)
	table.Each(func(s sector.Sector) {
		payload := make([]byte, geo.SectorSize)
		for i := range payload {
			payload[i] = byte(s.Linear + i)
		}
		table.Set(s.Linear, sector.Sector{
			Addr: s.Addr, Linear: s.Linear, Status: sector.Good,
			Payload: payload, DataCRC: sector.Pass,
		})
	})

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := WriteIMG(path, table, WriteIMGOptions{Policy: FillNone}); err != nil {
		t.Fatalf("WriteIMG: %v", err)
	}

	readBack, readGeo, err := ReadIMG(path)
	if err != nil {
		t.Fatalf("ReadIMG: %v", err)
	}
	if readGeo != geo {
		t.Fatalf("geometry mismatch: got %+v want %+v", readGeo, geo)
	}
	table.Each(func(want sector.Sector) {
		got := readBack.Get(want.Linear)
		if string(got.Payload) != string(want.Payload) {
			t.Fatalf("sector %d payload mismatch", want.Linear)
		}
	})
}

func TestWriteIMGFailsWithoutFillPolicy(t *testing.T) {
	geo := sector.Presets["ibm360"]
	table := sector.NewTable(geo) // every sector left Unread, no payload

	path := filepath.Join(t.TempDir(), "disk.img")
	err := WriteIMG(path, table, WriteIMGOptions{Policy: FillNone})
	if err != ErrMissingSectors {
		t.Fatalf("expected ErrMissingSectors, got %v", err)
	}
}

func TestWriteIMGZeroFillsMissingSectors(t *testing.T) {
	geo := sector.Geometry{Name: "t", Cylinders: 1, Heads: 1, SectorsPerTrack: 2, SectorSize: 128, RPM: 300, DataRateKbps: 250}
	table := sector.NewTable(geo)
	path := filepath.Join(t.TempDir(), "disk.img")

	if err := WriteIMG(path, table, WriteIMGOptions{Policy: FillZero}); err != nil {
		t.Fatalf("WriteIMG: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != geo.TotalSectors()*geo.SectorSize {
		t.Fatalf("unexpected file size %d", len(data))
	}
	for _, b := range data {
		if b != 0 {
			t.Fatalf("expected zero fill, found byte %#x", b)
		}
	}
}

func TestReadIMGUnknownGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weird.img")
	if err := os.WriteFile(path, make([]byte, 12345), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, _, err := ReadIMG(path)
	if err == nil {
		t.Fatalf("expected ErrUnknownGeometry")
	}
}
