package diff

import "github.com/pmezard/go-difflib/difflib"

// Unified renders a unified diff between two versions of a file. The engine
// never consumes this output; it exists for previews and audit notes.
func Unified(oldContent, newContent, path string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}
