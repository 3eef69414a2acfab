package diff

import "testing"

func TestToggle(t *testing.T) {
	d := Parse(sampleDiff, "notes.txt")

	if ok := d.Toggle(1); !ok {
		t.Fatal("Toggle(1) = false, want true")
	}
	if d.Hunks[1].Selected {
		t.Error("hunk 1 should be deselected after toggle")
	}
	if !d.Hunks[0].Selected {
		t.Error("toggling hunk 1 must not touch hunk 0")
	}

	if ok := d.Toggle(1); !ok {
		t.Fatal("second Toggle(1) = false, want true")
	}
	if !d.Hunks[1].Selected {
		t.Error("hunk 1 should be selected again")
	}

	if ok := d.Toggle(99); ok {
		t.Error("Toggle(99) = true, want false for unknown ID")
	}
}

func TestSelect_Idempotent(t *testing.T) {
	d := Parse(sampleDiff, "notes.txt")
	d.SelectNone()

	for i := 0; i < 2; i++ {
		if ok := d.Select(1); !ok {
			t.Fatalf("Select(1) = false on call %d, want true", i+1)
		}
		if !d.Hunks[1].Selected {
			t.Fatalf("hunk 1 deselected after %d Select calls", i+1)
		}
	}
	if d.Hunks[0].Selected {
		t.Error("Select(1) must not touch hunk 0")
	}

	if ok := d.Select(99); ok {
		t.Error("Select(99) = true, want false for unknown ID")
	}
}

func TestSelectAllNone(t *testing.T) {
	d := Parse(sampleDiff, "notes.txt")

	d.SelectNone()
	if ids := d.SelectedIDs(); len(ids) != 0 {
		t.Errorf("SelectedIDs after SelectNone = %v, want empty", ids)
	}

	d.SelectAll()
	ids := d.SelectedIDs()
	if len(ids) != 2 || !ids[0] || !ids[1] {
		t.Errorf("SelectedIDs after SelectAll = %v, want {0,1}", ids)
	}
}
