package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/patchdesk/patchdesk/internal/audit"
	"github.com/patchdesk/patchdesk/internal/backup"
	"github.com/patchdesk/patchdesk/internal/diff"
	"github.com/patchdesk/patchdesk/internal/logging"
	"github.com/patchdesk/patchdesk/internal/store"
)

const fiveLines = "a\nb\nc\nd\ne\n"

const sampleDiff = `--- a/notes.txt
+++ b/notes.txt
@@ -2 +2 @@
-b
+b2
@@ -3 +3,2 @@
-c
+c2
+c3
`

type fixture struct {
	engine  *Engine
	files   *store.MemStore
	backups *backup.Store
	audit   *audit.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	files := store.NewMemStore()
	backups, err := backup.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open backup store: %v", err)
	}
	t.Cleanup(func() { backups.Close() })

	auditLog, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	logger, err := logging.New("", false)
	if err != nil {
		t.Fatalf("open logger: %v", err)
	}

	return &fixture{
		engine:  New(files, backups, auditLog, logger),
		files:   files,
		backups: backups,
		audit:   auditLog,
	}
}

func (f *fixture) seed(t *testing.T, path, content string) {
	t.Helper()
	if err := f.files.Write(context.Background(), path, content); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func TestApply_FullSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", fiveLines)

	d := diff.Parse(sampleDiff, "notes.txt")
	outcome, err := f.engine.Apply(ctx, ApplyRequest{Original: fiveLines, Diff: d, Notes: "cleanup"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if outcome.HunksTotal != 2 || outcome.HunksSelected != 2 {
		t.Errorf("outcome = %+v, want 2/2 hunks", outcome)
	}
	if outcome.AuditWarning != nil {
		t.Errorf("unexpected audit warning: %v", outcome.AuditWarning)
	}

	got, err := f.files.Read(ctx, "notes.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := "a\nb2\nc2\nc3\nd\ne\n"
	if got != want {
		t.Errorf("file = %q, want %q", got, want)
	}

	// The backup holds the pre-apply content.
	content, _, err := f.backups.Get(ctx, outcome.BackupRef)
	if err != nil {
		t.Fatalf("Get backup: %v", err)
	}
	if content != fiveLines {
		t.Errorf("backup = %q, want original content", content)
	}

	entries, err := f.audit.ListByPath(ctx, "notes.txt")
	if err != nil {
		t.Fatalf("ListByPath: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionApplied || e.BackupRef != outcome.BackupRef || e.Notes != "cleanup" {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestApply_PartialSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", fiveLines)

	d := diff.Parse(sampleDiff, "notes.txt")
	outcome, err := f.engine.Apply(ctx, ApplyRequest{
		Original:  fiveLines,
		Diff:      d,
		Selection: map[int]bool{0: true},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.HunksSelected != 1 {
		t.Errorf("HunksSelected = %d, want 1", outcome.HunksSelected)
	}

	got, _ := f.files.Read(ctx, "notes.txt")
	want := "a\nb2\nc\nd\ne\n"
	if got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestApply_ContextMismatchHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", "completely different\n")

	d := diff.Parse(sampleDiff, "notes.txt")
	_, err := f.engine.Apply(ctx, ApplyRequest{Original: "completely different\n", Diff: d})
	var cm *diff.ContextMismatchError
	if !errors.As(err, &cm) {
		t.Fatalf("err = %v, want ContextMismatchError", err)
	}

	// No backup, no write, no audit entry.
	records, _ := f.backups.ListByPath(ctx, "notes.txt")
	if len(records) != 0 {
		t.Errorf("got %d backups, want 0", len(records))
	}
	got, _ := f.files.Read(ctx, "notes.txt")
	if got != "completely different\n" {
		t.Errorf("file was modified: %q", got)
	}
	entries, _ := f.audit.ListByPath(ctx, "notes.txt")
	if len(entries) != 0 {
		t.Errorf("got %d audit entries, want 0", len(entries))
	}
}

func TestApply_BackupTakenBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.files.WriteErr = errors.New("disk full")

	d := diff.Parse(sampleDiff, "notes.txt")
	_, err := f.engine.Apply(ctx, ApplyRequest{Original: fiveLines, Diff: d})

	var wf *WriteFailedError
	if !errors.As(err, &wf) {
		t.Fatalf("err = %v, want WriteFailedError", err)
	}
	if wf.BackupRef == "" {
		t.Fatal("WriteFailedError must carry the backup ref")
	}

	// The snapshot exists and resolves even though the write failed.
	content, _, err := f.backups.Get(ctx, wf.BackupRef)
	if err != nil {
		t.Fatalf("Get backup: %v", err)
	}
	if content != fiveLines {
		t.Errorf("backup = %q, want original content", content)
	}

	// A failed apply must not be recorded as applied.
	entries, _ := f.audit.ListByPath(ctx, "notes.txt")
	if len(entries) != 0 {
		t.Errorf("got %d audit entries, want 0", len(entries))
	}
}

func TestApply_CancelledBeforeWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "notes.txt", fiveLines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := diff.Parse(sampleDiff, "notes.txt")
	_, err := f.engine.Apply(ctx, ApplyRequest{Original: fiveLines, Diff: d})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	got, _ := f.files.Read(context.Background(), "notes.txt")
	if got != fiveLines {
		t.Errorf("file was modified after cancellation: %q", got)
	}
}

func TestApply_AuditFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", fiveLines)

	// Closing the audit log makes Append fail after the write succeeded.
	f.audit.Close()

	d := diff.Parse(sampleDiff, "notes.txt")
	outcome, err := f.engine.Apply(ctx, ApplyRequest{Original: fiveLines, Diff: d})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.AuditWarning == nil {
		t.Error("expected an audit warning")
	}

	// The write is not rolled back.
	got, _ := f.files.Read(ctx, "notes.txt")
	if got == fiveLines {
		t.Error("file should have been modified despite the audit failure")
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", fiveLines)

	d := diff.Parse(sampleDiff, "notes.txt")
	if err := f.engine.Reject(ctx, d, "wrong approach"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, _ := f.files.Read(ctx, "notes.txt")
	if got != fiveLines {
		t.Errorf("reject must not touch the file, got %q", got)
	}

	entries, err := f.audit.ListByPath(ctx, "notes.txt")
	if err != nil {
		t.Fatalf("ListByPath: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionRejected || e.BackupRef != "" || e.Notes != "wrong approach" {
		t.Errorf("audit entry = %+v", e)
	}
	if e.HunksTotal != 2 {
		t.Errorf("HunksTotal = %d, want 2", e.HunksTotal)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "notes.txt", fiveLines)

	d := diff.Parse(sampleDiff, "notes.txt")
	applied, err := f.engine.Apply(ctx, ApplyRequest{Original: fiveLines, Diff: d})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	restored, err := f.engine.Restore(ctx, "notes.txt", applied.BackupRef, "undo")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.BytesWritten != len(fiveLines) {
		t.Errorf("BytesWritten = %d, want %d", restored.BytesWritten, len(fiveLines))
	}

	got, _ := f.files.Read(ctx, "notes.txt")
	if got != fiveLines {
		t.Errorf("file = %q, want original content back", got)
	}

	// The backup is retained; restoring twice works.
	if _, err := f.engine.Restore(ctx, "notes.txt", applied.BackupRef, ""); err != nil {
		t.Fatalf("second Restore: %v", err)
	}

	entries, _ := f.audit.ListByPath(ctx, "notes.txt")
	if len(entries) != 3 {
		t.Fatalf("got %d audit entries, want 3 (apply + two restores)", len(entries))
	}
	restores := 0
	for _, e := range entries {
		if e.Action == audit.ActionRestored {
			restores++
			if e.BackupRef != applied.BackupRef {
				t.Errorf("restore entry ref = %q, want %q", e.BackupRef, applied.BackupRef)
			}
		}
	}
	if restores != 2 {
		t.Errorf("got %d restore entries, want 2", restores)
	}
}

func TestRestore_UnknownRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Restore(context.Background(), "notes.txt", "bogus-ref", "")
	var nf *BackupNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want BackupNotFoundError", err)
	}
	if nf.Ref != "bogus-ref" {
		t.Errorf("Ref = %q, want 'bogus-ref'", nf.Ref)
	}
}
