package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Parse parses unified diff text targeting filePath. It is a total function:
// structural problems are reported through ParsedDiff.Warnings rather than an
// error, so a best-effort view of a broken diff can still be rendered.
//
// The ---/+++ file header lines are skipped; filePath is authoritative. Every
// hunk starts out selected.
func Parse(text, filePath string) *ParsedDiff {
	d := &ParsedDiff{FilePath: filePath}

	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		m := hunkHeaderRe.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}
		hunk, warns := parseHunk(m, lines, &i, len(d.Hunks))
		d.Hunks = append(d.Hunks, hunk)
		d.Warnings = append(d.Warnings, warns...)
	}

	d.Warnings = append(d.Warnings, validateOrder(d.Hunks)...)
	return d
}

// parseHunk parses one hunk starting at the @@ header line and advances i
// past every line belonging to it.
func parseHunk(m []string, lines []string, i *int, id int) (Hunk, []Warning) {
	oldStart, _ := strconv.Atoi(m[1])
	newStart, _ := strconv.Atoi(m[3])
	oldLines, newLines := 1, 1
	if m[2] != "" {
		oldLines, _ = strconv.Atoi(m[2])
	}
	if m[4] != "" {
		newLines, _ = strconv.Atoi(m[4])
	}

	hunk := Hunk{
		ID:       id,
		Header:   strings.TrimRight(lines[*i], " \t"),
		OldStart: oldStart,
		OldLines: oldLines,
		NewStart: newStart,
		NewLines: newLines,
		Selected: true,
	}

	// Counters assign absolute line numbers; a line gets the counter value
	// before the increment.
	oldNum, newNum := oldStart, newStart
	oldSeen, newSeen := 0, 0
	*i++

	for *i < len(lines) {
		line := lines[*i]

		if strings.HasPrefix(line, "@@ ") || strings.HasPrefix(line, "diff ") {
			break
		}
		// "--- "/"+++ " are file headers only between hunks. While the
		// header still expects lines they are a marker plus content that
		// happens to start with "-- " or "++ ".
		if (strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ")) &&
			oldSeen >= oldLines && newSeen >= newLines {
			break
		}
		if strings.HasPrefix(line, `\ No newline at end of file`) {
			*i++
			continue
		}

		var kind LineKind
		var text string
		switch {
		case len(line) > 0 && line[0] == ' ':
			kind, text = Context, line[1:]
		case len(line) > 0 && line[0] == '-':
			kind, text = Remove, line[1:]
		case len(line) > 0 && line[0] == '+':
			kind, text = Add, line[1:]
		default:
			// Unified diff never legitimately produces an unmarked line
			// mid-hunk. Absorb it as context while the header still expects
			// lines, so truncated markers degrade instead of dropping data;
			// once the header is satisfied the hunk is over.
			if oldSeen >= oldLines && newSeen >= newLines {
				*i = hunkEnd(lines, *i)
				return hunk, nil
			}
			kind, text = Context, line
		}

		ln := Line{Kind: kind, Text: text}
		switch kind {
		case Context:
			ln.OldNum, ln.NewNum = oldNum, newNum
			oldNum++
			newNum++
			oldSeen++
			newSeen++
		case Remove:
			ln.OldNum = oldNum
			oldNum++
			oldSeen++
		case Add:
			ln.NewNum = newNum
			newNum++
			newSeen++
		}
		hunk.Lines = append(hunk.Lines, ln)
		*i++
	}

	var warns []Warning
	if oldSeen != oldLines {
		warns = append(warns, Warning{
			HunkID:  id,
			Message: fmt.Sprintf("header claims %d original line(s) but hunk contains %d", oldLines, oldSeen),
		})
	}
	if newSeen != newLines {
		warns = append(warns, Warning{
			HunkID:  id,
			Message: fmt.Sprintf("header claims %d resulting line(s) but hunk contains %d", newLines, newSeen),
		})
	}
	return hunk, warns
}

// hunkEnd skips forward from a blank separator to the next hunk header or
// end of input.
func hunkEnd(lines []string, i int) int {
	for i < len(lines) && !strings.HasPrefix(lines[i], "@@ ") {
		i++
	}
	return i
}

// validateOrder checks that hunks are sorted and non-overlapping in old-file
// coordinates. Violations become warnings here and a MalformedDiffError at
// reconstruction time.
func validateOrder(hunks []Hunk) []Warning {
	var warns []Warning
	for n := 1; n < len(hunks); n++ {
		prev, cur := &hunks[n-1], &hunks[n]
		if cur.OldStart < prev.OldStart+prev.OldLines {
			warns = append(warns, Warning{
				HunkID:  cur.ID,
				Message: fmt.Sprintf("hunk overlaps previous hunk in original file (starts at line %d, previous ends at %d)", cur.OldStart, prev.OldStart+prev.OldLines-1),
			})
		}
	}
	return warns
}
