package bridge

import "github.com/patchdesk/patchdesk/internal/diff"

// Request/response bodies for the bridge API. The diff travels as raw
// unified-diff text; file_path is always caller-supplied and authoritative.

type parseRequest struct {
	FilePath string `json:"file_path"`
	Diff     string `json:"diff"`
}

type parseResponse struct {
	*diff.ParsedDiff
	Summary diff.Summary `json:"summary"`
}

type previewRequest struct {
	FilePath string `json:"file_path"`
	Diff     string `json:"diff"`
	// Selected lists the hunk IDs to apply. Absent means every hunk.
	Selected *[]int `json:"selected,omitempty"`
}

type previewResponse struct {
	Content       string `json:"content"`
	Diff          string `json:"diff"`
	HunksTotal    int    `json:"hunks_total"`
	HunksSelected int    `json:"hunks_selected"`
}

type applyRequest struct {
	FilePath string `json:"file_path"`
	Diff     string `json:"diff"`
	Selected *[]int `json:"selected,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type applyResponse struct {
	Success       bool   `json:"success"`
	BackupRef     string `json:"backup_ref"`
	HunksTotal    int    `json:"hunks_total"`
	HunksSelected int    `json:"hunks_selected"`
	BytesWritten  int    `json:"bytes_written"`
	AuditWarning  string `json:"audit_warning,omitempty"`
}

type rejectRequest struct {
	FilePath string `json:"file_path"`
	Diff     string `json:"diff"`
	Notes    string `json:"notes,omitempty"`
}

type restoreRequest struct {
	FilePath  string `json:"file_path"`
	BackupRef string `json:"backup_ref"`
	Notes     string `json:"notes,omitempty"`
}

type restoreResponse struct {
	Success      bool   `json:"success"`
	BackupRef    string `json:"backup_ref"`
	BytesWritten int    `json:"bytes_written"`
	AuditWarning string `json:"audit_warning,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	BackupRef string `json:"backup_ref,omitempty"`
	HunkID    *int   `json:"hunk_id,omitempty"`
}
