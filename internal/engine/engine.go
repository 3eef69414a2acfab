// Package engine orchestrates patch application: reconstruct the new content,
// snapshot the original, write, and record the action. Side effects are
// strictly ordered — backup before write, audit only after a confirmed write —
// and a failed reconstruction produces no side effects at all.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patchdesk/patchdesk/internal/audit"
	"github.com/patchdesk/patchdesk/internal/backup"
	"github.com/patchdesk/patchdesk/internal/diff"
	"github.com/patchdesk/patchdesk/internal/logging"
	"github.com/patchdesk/patchdesk/internal/store"
)

// Engine applies and restores patches against a host-supplied content store.
// It holds no process-wide state; every dependency is passed in explicitly.
type Engine struct {
	files   store.ContentStore
	backups *backup.Store
	audit   *audit.Log
	log     *logging.Logger
}

// New creates an Engine from its collaborators.
func New(files store.ContentStore, backups *backup.Store, auditLog *audit.Log, logger *logging.Logger) *Engine {
	return &Engine{files: files, backups: backups, audit: auditLog, log: logger}
}

// ApplyRequest describes one apply. Original is the base content snapshot the
// diff was generated against; the engine never re-reads the file mid-apply.
// A nil Selection means "use the per-hunk Selected flags".
type ApplyRequest struct {
	Original  string
	Diff      *diff.ParsedDiff
	Selection map[int]bool
	Notes     string
}

// ApplyOutcome reports a successful apply. AuditWarning is non-nil when the
// file change succeeded but the audit append did not; the change is not
// rolled back and the host may retry the audit write independently.
type ApplyOutcome struct {
	BackupRef     string
	HunksTotal    int
	HunksSelected int
	BytesWritten  int
	AuditWarning  error
}

// Apply reconstructs the selected hunks over the original content, snapshots
// the original, writes the result, and records an audit entry.
//
// Failure semantics: a reconstruction error (MalformedDiffError,
// ContextMismatchError) returns before any backup or write happens. A write
// failure after the snapshot returns WriteFailedError carrying the backup
// ref. Cancellation is honored up to the point the content-store write
// begins; once issued, the write is allowed to complete and its outcome
// observed.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*ApplyOutcome, error) {
	if req.Diff == nil {
		return nil, errors.New("apply: nil diff")
	}
	start := time.Now()

	selection := req.Selection
	if selection == nil {
		selection = req.Diff.SelectedIDs()
	}

	content, err := diff.Reconstruct(req.Original, req.Diff, selection)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := e.backups.Snapshot(ctx, req.Diff.FilePath, req.Original)
	if err != nil {
		return nil, fmt.Errorf("snapshot original: %w", err)
	}

	// Last cancellation point; the write is not interruptible.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.files.Write(ctx, req.Diff.FilePath, content); err != nil {
		return nil, &WriteFailedError{Path: req.Diff.FilePath, BackupRef: rec.Ref, Err: err}
	}

	outcome := &ApplyOutcome{
		BackupRef:     rec.Ref,
		HunksTotal:    len(req.Diff.Hunks),
		HunksSelected: countSelected(selection, req.Diff),
		BytesWritten:  len(content),
	}

	entry := &audit.Entry{
		FilePath:      req.Diff.FilePath,
		Action:        audit.ActionApplied,
		HunksTotal:    outcome.HunksTotal,
		HunksSelected: outcome.HunksSelected,
		BackupRef:     rec.Ref,
		Notes:         req.Notes,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		// The file change already happened; dropping it because audit
		// logging failed would be worse than a missing audit row.
		e.log.Warn("audit append failed after apply",
			zap.String("path", req.Diff.FilePath), zap.Error(err))
		outcome.AuditWarning = err
	}

	e.log.PatchApplied(req.Diff.FilePath, outcome.HunksTotal, outcome.HunksSelected, rec.Ref, time.Since(start))
	return outcome, nil
}

// Reject records that the user declined a proposal. No file I/O happens.
func (e *Engine) Reject(ctx context.Context, d *diff.ParsedDiff, notes string) error {
	if d == nil {
		return errors.New("reject: nil diff")
	}
	s := d.Summary()
	err := e.audit.Append(ctx, &audit.Entry{
		FilePath:      d.FilePath,
		Action:        audit.ActionRejected,
		HunksTotal:    s.Hunks,
		HunksSelected: s.Selected,
		Notes:         notes,
	})
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

// RestoreOutcome reports a successful restore; AuditWarning follows the same
// rule as ApplyOutcome's.
type RestoreOutcome struct {
	BackupRef    string
	BytesWritten int
	AuditWarning error
}

// Restore writes a previously snapshotted content back to filePath. The
// backup is retained afterwards, so restores are repeatable.
func (e *Engine) Restore(ctx context.Context, filePath, backupRef, notes string) (*RestoreOutcome, error) {
	start := time.Now()

	content, _, err := e.backups.Get(ctx, backupRef)
	if err != nil {
		if errors.Is(err, backup.ErrNotFound) {
			return nil, &BackupNotFoundError{Ref: backupRef}
		}
		return nil, fmt.Errorf("read backup: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.files.Write(ctx, filePath, content); err != nil {
		return nil, &WriteFailedError{Path: filePath, BackupRef: backupRef, Err: err}
	}

	outcome := &RestoreOutcome{BackupRef: backupRef, BytesWritten: len(content)}
	err = e.audit.Append(ctx, &audit.Entry{
		FilePath:  filePath,
		Action:    audit.ActionRestored,
		BackupRef: backupRef,
		Notes:     notes,
	})
	if err != nil {
		e.log.Warn("audit append failed after restore",
			zap.String("path", filePath), zap.Error(err))
		outcome.AuditWarning = err
	}

	e.log.FileRestored(filePath, backupRef, time.Since(start))
	return outcome, nil
}

func countSelected(selection map[int]bool, d *diff.ParsedDiff) int {
	n := 0
	for i := range d.Hunks {
		if selection[d.Hunks[i].ID] {
			n++
		}
	}
	return n
}
