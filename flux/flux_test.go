package flux

import "testing"

func TestFromIntervalsRejectsNonPositive(t *testing.T) {
	_, err := FromIntervals(1_000_000, []int32{10, 0, 10}, nil)
	if err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestFromIntervalsRejectsBadIndex(t *testing.T) {
	_, err := FromIntervals(1_000_000, []int32{10, 10, 10}, []int{2, 1})
	if err == nil {
		t.Fatalf("expected error for non-increasing index positions")
	}
}

func TestRevolutionsDegenerate(t *testing.T) {
	c, err := FromIntervals(1_000_000, []int32{10, 10, 10}, nil)
	if err != nil {
		t.Fatalf("FromIntervals() returned error: %v", err)
	}
	if c.Revolutions() != 0 {
		t.Fatalf("Revolutions() = %d, want 0", c.Revolutions())
	}
	v, err := c.Revolution(0)
	if err != nil {
		t.Fatalf("Revolution(0) on a degenerate capture returned error: %v", err)
	}
	if len(v.Intervals()) != 3 {
		t.Errorf("degenerate view length = %d, want 3", len(v.Intervals()))
	}
}

func TestRevolutionOutOfRange(t *testing.T) {
	c, err := FromIntervals(1_000_000, []int32{10, 10, 10, 10}, []int{0, 2, 4})
	if err != nil {
		t.Fatalf("FromIntervals() returned error: %v", err)
	}
	if c.Revolutions() != 2 {
		t.Fatalf("Revolutions() = %d, want 2", c.Revolutions())
	}
	if _, err := c.Revolution(2); err == nil {
		t.Fatalf("Revolution(2) should fail: only 2 revolutions available")
	}
}

func TestDurationNS(t *testing.T) {
	// sample_hz=72MHz, 288-tick intervals are exactly 4000ns apart (2us MFM cell).
	c, err := FromIntervals(72_000_000, []int32{288, 288, 288}, []int{0, 3})
	if err != nil {
		t.Fatalf("FromIntervals() returned error: %v", err)
	}
	v, err := c.Revolution(0)
	if err != nil {
		t.Fatalf("Revolution(0) returned error: %v", err)
	}
	dur := c.DurationNS(v)
	want := int64(12_000) // 3*288 ticks @ 72MHz = 864 ticks => 12000ns
	if dur != want {
		t.Errorf("DurationNS() = %d, want %d", dur, want)
	}
}

func TestRetainOutlivesParentView(t *testing.T) {
	c, err := FromIntervals(1_000_000, []int32{1, 2, 3, 4, 5}, []int{0, 2, 5})
	if err != nil {
		t.Fatalf("FromIntervals() returned error: %v", err)
	}
	v, err := c.Revolution(1)
	if err != nil {
		t.Fatalf("Revolution(1) returned error: %v", err)
	}
	retained := Retain(v)
	if len(retained.Intervals) != 3 {
		t.Fatalf("Retain() length = %d, want 3", len(retained.Intervals))
	}
	if retained.Intervals[0] != 3 || retained.Intervals[2] != 5 {
		t.Errorf("Retain() contents = %v, want [3 4 5]", retained.Intervals)
	}
}
