package engine

import "fmt"

// WriteFailedError reports that the content-store write failed after the
// backup snapshot succeeded. The backup ref is carried so the caller can
// retry or restore; the backup itself is harmless, disposable state and is
// never rolled back.
type WriteFailedError struct {
	Path      string
	BackupRef string
	Err       error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("write failed for %s (backup %s retained): %v", e.Path, e.BackupRef, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

// BackupNotFoundError reports a restore against an invalid or expired backup
// ref. Terminal for that restore attempt.
type BackupNotFoundError struct {
	Ref string
}

func (e *BackupNotFoundError) Error() string {
	return fmt.Sprintf("backup not found: %s", e.Ref)
}
