package diff

import "fmt"

// MalformedDiffError reports a structural violation (overlapping hunks, line
// counts that contradict the header) detected before any write. Recoverable
// by requesting a fresh diff.
type MalformedDiffError struct {
	HunkID int // -1 when not tied to a specific hunk
	Reason string
}

func (e *MalformedDiffError) Error() string {
	if e.HunkID < 0 {
		return fmt.Sprintf("malformed diff: %s", e.Reason)
	}
	return fmt.Sprintf("malformed diff: hunk %d: %s", e.HunkID, e.Reason)
}

// ContextMismatchError reports that the original content no longer matches a
// hunk's anchor region: the proposal is stale and must be regenerated against
// the current file. Detecting this is what keeps a stale diff from silently
// corrupting the file.
type ContextMismatchError struct {
	HunkID   int
	OldLine  int // 1-based line in the original file
	Expected string
	Actual   string
}

func (e *ContextMismatchError) Error() string {
	return fmt.Sprintf("context mismatch: hunk %d expects %q at line %d, file has %q",
		e.HunkID, e.Expected, e.OldLine, e.Actual)
}
