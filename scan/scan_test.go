package scan

import (
	"context"
	"testing"
	"time"

	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/mfm"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// fakeHandle synthesizes IBM PC MFM flux for whatever track is currently
// seeked, so scan.Run can be exercised without real hardware.
type fakeHandle struct {
	geo         sector.Geometry
	cellNS      float64
	cyl, head   int
	payload     [][]byte // one payload per sector, indexed 0..SectorsPerTrack-1
	failCapture bool
}

func newFakeHandle(geo sector.Geometry) *fakeHandle {
	payload := make([][]byte, geo.SectorsPerTrack)
	for i := range payload {
		p := make([]byte, geo.SectorSize)
		for j := range p {
			p[j] = byte(i*7 + j)
		}
		payload[i] = p
	}
	return &fakeHandle{geo: geo, cellNS: 1000, payload: payload}
}

func (f *fakeHandle) Seek(ctx context.Context, cylinder int) error { f.cyl = cylinder; return nil }
func (f *fakeHandle) SetHead(ctx context.Context, head int) error  { f.head = head; return nil }
func (f *fakeHandle) SetMotor(ctx context.Context, on bool) error  { return nil }

func (f *fakeHandle) ReadFlux(ctx context.Context, revolutions int) (flux.Capture, error) {
	sectors := make([]sector.Sector, f.geo.SectorsPerTrack)
	for i := range sectors {
		sectors[i] = sector.Sector{Payload: f.payload[i]}
	}
	enc := mfm.IBMEncoder{Geo: f.geo, CellNS: f.cellNS, MaxHalfBits: 1 << 20}
	bs := enc.EncodeTrack(sectors, f.cyl, f.head)

	cells := bs.Bits
	intervalsNS := pll.EncodeCells(cells, f.cellNS)

	nsPerTick := 1e9 / float64(flux.DefaultSampleHz)
	ticks := make([]int32, len(intervalsNS))
	for i, v := range intervalsNS {
		ticks[i] = int32(v / nsPerTick)
		if ticks[i] < 1 {
			ticks[i] = 1
		}
	}
	return flux.FromIntervals(flux.DefaultSampleHz, ticks, []int{0, len(ticks)})
}

func (f *fakeHandle) WriteFlux(ctx context.Context, cap flux.Capture) error { return nil }
func (f *fakeHandle) EraseTrack(ctx context.Context) error                 { return nil }
func (f *fakeHandle) MeasureRPM(ctx context.Context) (time.Duration, error) {
	return 200 * time.Millisecond, nil
}
func (f *fakeHandle) Close() error { return nil }

func testGeometry() sector.Geometry {
	return sector.Geometry{
		Name: "test", Cylinders: 2, Heads: 1, SectorsPerTrack: 3,
		SectorSize: 128, RPM: 300, DataRateKbps: 250,
	}
}

func TestRunStandardModeDecodesAllSectors(t *testing.T) {
	geo := testGeometry()
	h := newFakeHandle(geo)
	opts := Options{Mode: Standard, Geo: geo, Encoding: pll.MFM, NominalBitCellUS: 2}

	result, err := Run(context.Background(), h, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cancelled {
		t.Fatalf("expected scan to complete uncancelled")
	}
	counts := result.Table.Counts()
	if counts[sector.Good] != geo.TotalSectors() {
		t.Fatalf("counts = %+v, want all %d sectors good", counts, geo.TotalSectors())
	}
}

func TestRunQuickModeSamplesSubsetOfCylinders(t *testing.T) {
	geo := sector.Geometry{Name: "test", Cylinders: 8, Heads: 1, SectorsPerTrack: 2, SectorSize: 128, RPM: 300, DataRateKbps: 250}
	h := newFakeHandle(geo)
	opts := Options{Mode: Quick, Geo: geo, Encoding: pll.MFM, NominalBitCellUS: 2}

	result, err := Run(context.Background(), h, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Quick mode only visits cylinders {0,2,4,6,7}; the rest stay Unread.
	counts := result.Table.Counts()
	if counts[sector.Unread] == 0 {
		t.Fatalf("expected quick mode to leave unsampled cylinders Unread, counts=%+v", counts)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	geo := testGeometry()
	h := newFakeHandle(geo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := Options{Mode: Standard, Geo: geo, Encoding: pll.MFM, NominalBitCellUS: 2}

	result, err := Run(ctx, h, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("expected Cancelled=true for a pre-cancelled context")
	}
	if result.Table.Counts()[sector.Unread] != geo.TotalSectors() {
		t.Fatalf("expected no tracks decoded when cancelled before the first iteration")
	}
}

func TestMergeBetterPrefersHigherTierStatus(t *testing.T) {
	geo := testGeometry()
	table := sector.NewTable(geo)
	table.Set(0, sector.Sector{Status: sector.Bad, Quality: 0.9})
	table.MergeBetter(0, sector.Sector{Status: sector.Good, Quality: 0.1})
	if table.Get(0).Status != sector.Good {
		t.Fatalf("expected Good to replace Bad regardless of quality")
	}
}

func TestMergeBetterKeepsHigherQualityOnTie(t *testing.T) {
	geo := testGeometry()
	table := sector.NewTable(geo)
	table.Set(0, sector.Sector{Status: sector.Good, Quality: 0.95})
	table.MergeBetter(0, sector.Sector{Status: sector.Good, Quality: 0.5})
	if table.Get(0).Quality != 0.95 {
		t.Fatalf("expected higher-quality Good capture to survive, got %v", table.Get(0).Quality)
	}
}
