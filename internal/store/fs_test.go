package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStore_ReadWrite(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	if err := s.Write(ctx, "sub/dir/file.txt", "hello\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(ctx, "sub/dir/file.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "hello\n" {
		t.Errorf("Read = %q, want %q", got, "hello\n")
	}

	// Overwrite
	if err := s.Write(ctx, "sub/dir/file.txt", "v2\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ = s.Read(ctx, "sub/dir/file.txt")
	if got != "v2\n" {
		t.Errorf("Read after overwrite = %q, want %q", got, "v2\n")
	}
}

func TestFSStore_WritePreservesMode(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	target := filepath.Join(tmpDir, "script.sh")
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := s.Write(context.Background(), "script.sh", "#!/bin/sh\necho hi\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestFSStore_RejectsEscapes(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	for _, path := range []string{"../outside.txt", "sub/../../outside.txt", "/etc/passwd"} {
		if err := s.Write(ctx, path, "x"); err == nil {
			t.Errorf("Write(%q) succeeded, want escape rejection", path)
		}
		if _, err := s.Read(ctx, path); err == nil {
			t.Errorf("Read(%q) succeeded, want escape rejection", path)
		}
	}
}

func TestFSStore_WriteLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Write(context.Background(), "f.txt", "x"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "f.txt" {
		t.Errorf("directory contains %v, want only f.txt", entries)
	}
}

func TestFSStore_List(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	for _, p := range []string{"a.txt", "sub/b.txt", ".hidden/c.txt"} {
		full := filepath.Join(tmpDir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := s.List(ctx, ".")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := map[string]bool{"a.txt": true, filepath.Join("sub", "b.txt"): true}
	if len(paths) != len(want) {
		t.Fatalf("List = %v, want %v (dot directories skipped)", paths, want)
	}
	for _, p := range paths {
		if !want[p] {
			t.Errorf("unexpected path %q in listing", p)
		}
	}
}
