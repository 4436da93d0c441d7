package mfm

import (
	"bytes"
	"testing"

	"github.com/sergev/fluxkit/sector"
)

func testIBMGeometry() sector.Geometry {
	return sector.Geometry{
		Name: "test", Cylinders: 2, Heads: 1, SectorsPerTrack: 3,
		SectorSize: 128, RPM: 300, DataRateKbps: 250,
	}
}

func TestIBMEncodeDecodeRoundTrip(t *testing.T) {
	geo := testIBMGeometry()
	want := make([]sector.Sector, geo.SectorsPerTrack)
	for i := range want {
		payload := bytes.Repeat([]byte{byte(0x10 + i)}, geo.SectorSize)
		want[i] = sector.Sector{Payload: payload}
	}

	enc := IBMEncoder{Geo: geo, CellNS: 1000, MaxHalfBits: 200000}
	bs := enc.EncodeTrack(want, 0, 0)

	table := sector.NewTable(geo)
	dec := IBMDecoder{Geo: geo}
	dec.DecodeTrack(bs, 0, 0, table)

	for i := 0; i < geo.SectorsPerTrack; i++ {
		got := table.GetAddr(0, 0, i+1)
		if got.Status != sector.Good {
			t.Fatalf("sector %d status = %v, want Good", i+1, got.Status)
		}
		if !bytes.Equal(got.Payload, want[i].Payload) {
			t.Fatalf("sector %d payload mismatch: got %x want %x", i+1, got.Payload, want[i].Payload)
		}
		if got.DataCRC != sector.Pass || got.HeaderCRC != sector.Pass {
			t.Fatalf("sector %d CRC not passing: header=%v data=%v", i+1, got.HeaderCRC, got.DataCRC)
		}
	}
}

func TestIBMDecodeWrongTrackLeavesSectorsUnread(t *testing.T) {
	geo := testIBMGeometry()
	sectors := make([]sector.Sector, geo.SectorsPerTrack)
	for i := range sectors {
		sectors[i] = sector.Sector{Payload: make([]byte, geo.SectorSize)}
	}
	enc := IBMEncoder{Geo: geo, CellNS: 1000, MaxHalfBits: 200000}
	bs := enc.EncodeTrack(sectors, 1, 0)

	table := sector.NewTable(geo)
	dec := IBMDecoder{Geo: geo}
	// Decoding cylinder-1 flux while asking for cylinder 0's sectors:
	// nothing should match.
	dec.DecodeTrack(bs, 0, 0, table)

	got := table.GetAddr(0, 0, 1)
	if got.Status != sector.Unread {
		t.Fatalf("expected sector to remain Unread, got %v", got.Status)
	}
}

func TestIBMDecodeDetectsDataCRCFailure(t *testing.T) {
	geo := testIBMGeometry()
	sectors := make([]sector.Sector, geo.SectorsPerTrack)
	for i := range sectors {
		sectors[i] = sector.Sector{Payload: bytes.Repeat([]byte{0xaa}, geo.SectorSize)}
	}
	enc := IBMEncoder{Geo: geo, CellNS: 1000, MaxHalfBits: 200000}
	bs := enc.EncodeTrack(sectors, 0, 0)

	// Flip a data cell in the middle of the first sector's payload, to
	// corrupt it without touching sync marks that would stop the scanner
	// from finding the sector at all. Each byte is 16 cells (clock, then
	// data, so odd cell indices are data); the track opens with 146 bytes
	// of gap and index mark, and the payload starts 60 bytes into the
	// sector.
	corrupt := make([]bool, len(bs.Bits))
	copy(corrupt, bs.Bits)
	pos := (146+60+64)*16 + 1
	corrupt[pos] = !corrupt[pos]
	bs.Bits = corrupt

	table := sector.NewTable(geo)
	dec := IBMDecoder{Geo: geo}
	dec.DecodeTrack(bs, 0, 0, table)

	counts := table.Counts()
	if counts[sector.Good] == geo.SectorsPerTrack {
		t.Fatal("expected at least one sector to show a CRC failure after corruption")
	}
}
