package audio

import "testing"

func TestBatchFrameRowIsZeroedUntilWritten(t *testing.T) {
	b := NewBatchFrame(3)
	row := b.Row(1)
	for i := range row {
		row[i] = 1
	}
	b.ZeroRow(1)
	for i, v := range b.Row(1) {
		if v != 0 {
			t.Fatalf("row 1 sample %d not zeroed: %v", i, v)
		}
	}
	if b.Active[1] {
		t.Fatal("ZeroRow must clear the activity flag")
	}
}

func TestBatchFrameResetClearsEverything(t *testing.T) {
	b := NewBatchFrame(2)
	b.Active[0] = true
	b.Row(0)[0] = 0.3
	b.Reset()
	if b.Active[0] {
		t.Fatal("Reset must clear activity flags")
	}
	if b.Row(0)[0] != 0 {
		t.Fatal("Reset must zero PCM")
	}
}

func TestRowsDoNotAlias(t *testing.T) {
	b := NewBatchFrame(2)
	b.Row(0)[0] = 1
	if b.Row(1)[0] != 0 {
		t.Fatal("rows must not alias each other's backing storage")
	}
}
