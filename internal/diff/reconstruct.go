package diff

import (
	"fmt"
	"strings"
)

// Reconstruct computes the content that results from applying only the
// selected hunks of d to original.
//
// Hunk line numbers are anchored to the original file snapshot, never to a
// partially patched intermediate, so the walk always follows the original:
// deselecting one hunk can never shift its neighbours. Every hunk's Context
// and Remove lines are verified byte-for-byte against the original whether or
// not the hunk is selected; any drift fails with ContextMismatchError before
// a single line of output is trusted.
func Reconstruct(original string, d *ParsedDiff, selection map[int]bool) (string, error) {
	if err := checkStructure(d); err != nil {
		return "", err
	}

	hadTrailingNewline := strings.HasSuffix(original, "\n") || original == ""
	var origLines []string
	if original != "" {
		origLines = strings.Split(original, "\n")
		if strings.HasSuffix(original, "\n") {
			origLines = origLines[:len(origLines)-1]
		}
	}

	out := make([]string, 0, len(origLines))
	cursor := 0
	for i := range d.Hunks {
		h := &d.Hunks[i]

		anchor := anchorIndex(h)
		if anchor < cursor {
			return "", &MalformedDiffError{HunkID: h.ID, Reason: "hunk overlaps previous hunk"}
		}
		if anchor > len(origLines) {
			return "", &ContextMismatchError{
				HunkID:   h.ID,
				OldLine:  h.OldStart,
				Expected: firstOldSideText(h),
				Actual:   "",
			}
		}

		// Copy the untouched span before the hunk.
		out = append(out, origLines[cursor:anchor]...)
		cursor = anchor

		// Verify the old side of the hunk against the original.
		idx := cursor
		for _, ln := range h.Lines {
			if ln.Kind == Add {
				continue
			}
			if idx >= len(origLines) {
				return "", &ContextMismatchError{HunkID: h.ID, OldLine: idx + 1, Expected: ln.Text}
			}
			if origLines[idx] != ln.Text {
				return "", &ContextMismatchError{HunkID: h.ID, OldLine: idx + 1, Expected: ln.Text, Actual: origLines[idx]}
			}
			idx++
		}

		if selection[h.ID] {
			// Emit the new side: context and added lines.
			for _, ln := range h.Lines {
				if ln.Kind == Remove {
					continue
				}
				out = append(out, ln.Text)
			}
		} else {
			// Deselected: the region reverts to the original untouched.
			out = append(out, origLines[cursor:idx]...)
		}
		cursor = idx
	}

	out = append(out, origLines[cursor:]...)

	if len(out) == 0 {
		return "", nil
	}
	result := strings.Join(out, "\n")
	if hadTrailingNewline {
		result += "\n"
	}
	return result, nil
}

// anchorIndex returns the 0-based position in the original where the hunk's
// old-side span begins. A zero-length old range means a pure insertion: the
// header names the line the new content lands after, so the anchor sits one
// line later than usual.
func anchorIndex(h *Hunk) int {
	if h.OldLines == 0 {
		return h.OldStart
	}
	return h.OldStart - 1
}

// checkStructure re-derives the structural invariants instead of trusting
// parse-time warnings, since a ParsedDiff may have been built by hand.
func checkStructure(d *ParsedDiff) error {
	for i := range d.Hunks {
		h := &d.Hunks[i]
		if h.OldLines > 0 && h.OldStart < 1 {
			return &MalformedDiffError{HunkID: h.ID, Reason: fmt.Sprintf("invalid old start %d", h.OldStart)}
		}
		oldSeen, newSeen := 0, 0
		for _, ln := range h.Lines {
			switch ln.Kind {
			case Context:
				oldSeen++
				newSeen++
			case Remove:
				oldSeen++
			case Add:
				newSeen++
			}
		}
		if oldSeen != h.OldLines {
			return &MalformedDiffError{
				HunkID: h.ID,
				Reason: fmt.Sprintf("header claims %d original line(s) but hunk contains %d", h.OldLines, oldSeen),
			}
		}
		if newSeen != h.NewLines {
			return &MalformedDiffError{
				HunkID: h.ID,
				Reason: fmt.Sprintf("header claims %d resulting line(s) but hunk contains %d", h.NewLines, newSeen),
			}
		}
		if i > 0 {
			prev := &d.Hunks[i-1]
			if anchorIndex(h) < anchorIndex(prev)+prev.OldLines {
				return &MalformedDiffError{HunkID: h.ID, Reason: "hunks overlap or are out of order"}
			}
		}
	}
	return nil
}

// firstOldSideText returns the first context/remove line of a hunk, for
// mismatch reporting when the hunk points past the end of the file.
func firstOldSideText(h *Hunk) string {
	for _, ln := range h.Lines {
		if ln.Kind != Add {
			return ln.Text
		}
	}
	return ""
}
