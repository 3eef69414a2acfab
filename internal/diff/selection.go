package diff

// Selection state lives on the per-hunk Selected flag; these helpers are the
// only way the UI mutates it. SelectAll and SelectNone are conveniences that
// still go through the per-hunk flags.

// Toggle flips the selection of the hunk with the given ID and reports
// whether such a hunk exists.
func (d *ParsedDiff) Toggle(id int) bool {
	for i := range d.Hunks {
		if d.Hunks[i].ID == id {
			d.Hunks[i].Selected = !d.Hunks[i].Selected
			return true
		}
	}
	return false
}

// Select marks the hunk with the given ID selected and reports whether such
// a hunk exists. Unlike Toggle it is idempotent, so callers applying an
// explicit ID list are safe against duplicates.
func (d *ParsedDiff) Select(id int) bool {
	for i := range d.Hunks {
		if d.Hunks[i].ID == id {
			d.Hunks[i].Selected = true
			return true
		}
	}
	return false
}

// SelectAll marks every hunk selected.
func (d *ParsedDiff) SelectAll() {
	for i := range d.Hunks {
		d.Hunks[i].Selected = true
	}
}

// SelectNone deselects every hunk.
func (d *ParsedDiff) SelectNone() {
	for i := range d.Hunks {
		d.Hunks[i].Selected = false
	}
}

// SelectedIDs returns the set of currently selected hunk IDs in the form
// Reconstruct consumes.
func (d *ParsedDiff) SelectedIDs() map[int]bool {
	ids := make(map[int]bool, len(d.Hunks))
	for i := range d.Hunks {
		if d.Hunks[i].Selected {
			ids[d.Hunks[i].ID] = true
		}
	}
	return ids
}
