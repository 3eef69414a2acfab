// Package diff parses unified diff text into addressable hunks and
// reconstructs file content from a chosen subset of them.
package diff

import "encoding/json"

// LineKind classifies a single line inside a hunk.
type LineKind int

const (
	// Context is a line unchanged between versions (space prefix)
	Context LineKind = iota
	// Remove is a line present in the original but not the result (- prefix)
	Remove
	// Add is a line present in the result but not the original (+ prefix)
	Add
)

// String returns the lowercase name of the kind.
func (k LineKind) String() string {
	switch k {
	case Remove:
		return "remove"
	case Add:
		return "add"
	default:
		return "context"
	}
}

// MarshalJSON encodes the kind as its string name.
func (k LineKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its string name.
func (k *LineKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "remove":
		*k = Remove
	case "add":
		*k = Add
	default:
		*k = Context
	}
	return nil
}

// Line is one line of a hunk, without its leading marker character.
// OldNum is set for Context and Remove lines, NewNum for Context and Add
// lines; both are absolute 1-based positions in their respective file.
type Line struct {
	Kind   LineKind `json:"kind"`
	Text   string   `json:"text"`
	OldNum int      `json:"oldNum,omitempty"`
	NewNum int      `json:"newNum,omitempty"`
}

// Hunk is one contiguous region of change. IDs are assigned in file order
// starting at 0 and stay stable for the lifetime of the ParsedDiff.
type Hunk struct {
	ID       int    `json:"id"`
	Header   string `json:"header"`
	OldStart int    `json:"oldStart"`
	OldLines int    `json:"oldLines"`
	NewStart int    `json:"newStart"`
	NewLines int    `json:"newLines"`
	Lines    []Line `json:"lines"`
	Selected bool   `json:"selected"`
}

// Warning flags a structural problem found during parsing. Parsing never
// fails outright so a partially broken diff can still be rendered; it is the
// reconstruction step that refuses to apply a bad hunk.
type Warning struct {
	HunkID  int    `json:"hunkId"` // -1 when not tied to a specific hunk
	Message string `json:"message"`
}

// ParsedDiff is one file's parsed diff. FilePath comes from the caller, not
// from the ---/+++ header lines, which are untrusted display text.
type ParsedDiff struct {
	FilePath string    `json:"filePath"`
	Hunks    []Hunk    `json:"hunks"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Summary gives the hunk counts recorded in audit entries and shown to the
// user after an apply.
type Summary struct {
	Hunks    int `json:"hunks"`
	Selected int `json:"selected"`
}

// Summary returns the total and selected hunk counts.
func (d *ParsedDiff) Summary() Summary {
	s := Summary{Hunks: len(d.Hunks)}
	for i := range d.Hunks {
		if d.Hunks[i].Selected {
			s.Selected++
		}
	}
	return s
}
