// Package backup snapshots file content before the patch engine overwrites
// it. Blobs are content-addressed by SHA-256 in a two-level directory layout;
// records live in a bbolt index so a backup ref resolves independently of the
// path it was taken for. Backups are never mutated and never deleted by the
// engine; pruning is a host concern.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecords = []byte("records")
	bucketByPath  = []byte("by_path")
)

// ErrNotFound is returned when a backup ref does not resolve to a record.
var ErrNotFound = errors.New("backup not found")

// Record describes one snapshot. Ref is the opaque handle callers hold on to;
// Hash addresses the blob content.
type Record struct {
	Ref       string    `json:"ref"`
	FilePath  string    `json:"file_path"`
	Hash      string    `json:"hash"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds backup blobs and their index.
type Store struct {
	blobRoot string
	db       *bolt.DB
}

// Open creates or opens a backup store under dir (blobs/ plus index.db).
func Open(dir string) (*Store, error) {
	blobRoot := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(blobRoot, 0755); err != nil {
		return nil, fmt.Errorf("create backup blob root: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "index.db"), 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open backup index: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketByPath} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{blobRoot: blobRoot, db: db}, nil
}

// Close releases the index database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Snapshot stores content as a new backup of filePath and returns its record.
// The blob write is idempotent; identical content shares a single blob while
// each snapshot still gets its own ref.
func (s *Store) Snapshot(_ context.Context, filePath, content string) (*Record, error) {
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	if err := s.putBlob(hash, content); err != nil {
		return nil, err
	}

	rec := &Record{
		Ref:       uuid.NewString(),
		FilePath:  filePath,
		Hash:      hash,
		SizeBytes: int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := tx.Bucket(bucketRecords).Put([]byte(rec.Ref), data); err != nil {
			return fmt.Errorf("store record: %w", err)
		}
		// Secondary index: path-prefixed keys so ListByPath is a prefix scan.
		key := fmt.Sprintf("%s\x00%s", rec.FilePath, rec.Ref)
		if err := tx.Bucket(bucketByPath).Put([]byte(key), []byte(rec.Ref)); err != nil {
			return fmt.Errorf("index record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get resolves a backup ref to its content and record. Returns ErrNotFound
// for an unknown ref.
func (s *Store) Get(_ context.Context, ref string) (string, *Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(ref))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", nil, err
	}

	data, err := os.ReadFile(s.blobPath(rec.Hash))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("read backup blob %s: %w", rec.Hash, err)
	}
	return string(data), &rec, nil
}

// ListByPath returns every backup taken for filePath, oldest first.
func (s *Store) ListByPath(_ context.Context, filePath string) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		recBucket := tx.Bucket(bucketRecords)
		prefix := []byte(filePath + "\x00")
		c := tx.Bucket(bucketByPath).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := recBucket.Get(v)
			if data == nil {
				continue
			}
			rec := &Record{}
			if err := json.Unmarshal(data, rec); err != nil {
				return fmt.Errorf("unmarshal record %s: %w", v, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Index keys order by ref, which is random; present snapshots in the
	// order they were taken.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// putBlob writes a blob via temp file + rename. Storing an existing blob is a
// no-op.
func (s *Store) putBlob(hash, content string) error {
	path := s.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*.tmp")
	if err != nil {
		return fmt.Errorf("create blob temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

// blobPath fans blobs out by the first two hash characters to keep directory
// sizes manageable.
func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.blobRoot, hash[:2], hash)
}
