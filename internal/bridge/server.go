// Package bridge exposes the patch engine to the desktop UI and the browser
// extension over a loopback HTTP JSON API.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/patchdesk/patchdesk/internal/audit"
	"github.com/patchdesk/patchdesk/internal/backup"
	"github.com/patchdesk/patchdesk/internal/diff"
	"github.com/patchdesk/patchdesk/internal/engine"
	"github.com/patchdesk/patchdesk/internal/logging"
	"github.com/patchdesk/patchdesk/internal/store"
)

// maxRequestBody bounds JSON request bodies. Diffs for file-sized inputs fit
// comfortably; anything bigger is misuse.
const maxRequestBody = 16 * 1024 * 1024

// Server wires the bridge handlers to the engine and its stores.
type Server struct {
	engine  *engine.Engine
	files   store.ContentStore
	backups *backup.Store
	audit   *audit.Log
	log     *logging.Logger
	locks   *engine.PathLocker
}

// NewServer creates a bridge server over the given collaborators.
func NewServer(eng *engine.Engine, files store.ContentStore, backups *backup.Store, auditLog *audit.Log, logger *logging.Logger) *Server {
	return &Server{
		engine:  eng,
		files:   files,
		backups: backups,
		audit:   auditLog,
		log:     logger,
		locks:   engine.NewPathLocker(),
	}
}

// Handler returns the routed HTTP handler with logging and recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/v1/diff/parse", s.handleParse)
	mux.HandleFunc("POST /api/v1/diff/preview", s.handlePreview)
	mux.HandleFunc("POST /api/v1/patches/apply", s.handleApply)
	mux.HandleFunc("POST /api/v1/patches/reject", s.handleReject)
	mux.HandleFunc("POST /api/v1/restore", s.handleRestore)
	mux.HandleFunc("GET /api/v1/backups", s.handleListBackups)
	mux.HandleFunc("GET /api/v1/audit", s.handleListAudit)

	return s.logRequests(s.recover(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path is required")
		return
	}
	d := diff.Parse(req.Diff, req.FilePath)
	writeJSON(w, http.StatusOK, parseResponse{ParsedDiff: d, Summary: d.Summary()})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path is required")
		return
	}

	d := diff.Parse(req.Diff, req.FilePath)
	if !applySelection(d, req.Selected) {
		writeError(w, http.StatusUnprocessableEntity, "unknown_hunk", "selected refers to a hunk id that does not exist")
		return
	}

	original, ok := s.readOriginal(w, r, req.FilePath)
	if !ok {
		return
	}

	content, err := diff.Reconstruct(original, d, d.SelectedIDs())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	rendered, err := diff.Unified(original, content, req.FilePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	sum := d.Summary()
	writeJSON(w, http.StatusOK, previewResponse{
		Content:       content,
		Diff:          rendered,
		HunksTotal:    sum.Hunks,
		HunksSelected: sum.Selected,
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path is required")
		return
	}

	d := diff.Parse(req.Diff, req.FilePath)
	if !applySelection(d, req.Selected) {
		writeError(w, http.StatusUnprocessableEntity, "unknown_hunk", "selected refers to a hunk id that does not exist")
		return
	}

	// Serialize applies per path: two applies against the same base snapshot
	// written back to back would silently lose one side.
	unlock := s.locks.Lock(req.FilePath)
	defer unlock()

	original, ok := s.readOriginal(w, r, req.FilePath)
	if !ok {
		return
	}

	outcome, err := s.engine.Apply(r.Context(), engine.ApplyRequest{
		Original: original,
		Diff:     d,
		Notes:    req.Notes,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := applyResponse{
		Success:       true,
		BackupRef:     outcome.BackupRef,
		HunksTotal:    outcome.HunksTotal,
		HunksSelected: outcome.HunksSelected,
		BytesWritten:  outcome.BytesWritten,
	}
	if outcome.AuditWarning != nil {
		resp.AuditWarning = outcome.AuditWarning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path is required")
		return
	}
	d := diff.Parse(req.Diff, req.FilePath)
	if err := s.engine.Reject(r.Context(), d, req.Notes); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" || req.BackupRef == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path and backup_ref are required")
		return
	}

	unlock := s.locks.Lock(req.FilePath)
	defer unlock()

	outcome, err := s.engine.Restore(r.Context(), req.FilePath, req.BackupRef, req.Notes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := restoreResponse{
		Success:      true,
		BackupRef:    outcome.BackupRef,
		BytesWritten: outcome.BytesWritten,
	}
	if outcome.AuditWarning != nil {
		resp.AuditWarning = outcome.AuditWarning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "path query parameter is required")
		return
	}
	records, err := s.backups.ListByPath(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if records == nil {
		records = []*backup.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": records})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if path := q.Get("path"); path != "" {
		entries, err := s.audit.ListByPath(r.Context(), path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeAudit(w, entries)
		return
	}

	var since, until time.Time
	var err error
	if v := q.Get("since"); v != "" {
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid since: %v", err))
			return
		}
	}
	if v := q.Get("until"); v != "" {
		if until, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid until: %v", err))
			return
		}
	}
	entries, err := s.audit.ListRange(r.Context(), since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeAudit(w, entries)
}

func writeAudit(w http.ResponseWriter, entries []*audit.Entry) {
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// readOriginal loads the current content for preview/apply. A missing file
// reads as empty, so a pure-insertion diff can create it; only the hunks'
// context verification decides whether the diff fits. Reports false after
// writing the error response.
func (s *Server) readOriginal(w http.ResponseWriter, r *http.Request, filePath string) (string, bool) {
	original, err := s.files.Read(r.Context(), filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusInternalServerError, "read_failed", err.Error())
			return "", false
		}
		original = ""
	}
	return original, true
}

// applySelection sets the diff's per-hunk flags from an explicit ID list.
// A nil list keeps the parse default (everything selected). Reports false
// when an ID does not exist.
func applySelection(d *diff.ParsedDiff, selected *[]int) bool {
	if selected == nil {
		return true
	}
	d.SelectNone()
	for _, id := range *selected {
		if !d.Select(id) {
			return false
		}
	}
	return true
}

// writeEngineError maps engine and reconstruction failures to distinct HTTP
// shapes. Context mismatch means "re-ask the AI"; write failure means "retry
// or restore" — the UI must be able to tell them apart.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var mismatch *diff.ContextMismatchError
	if errors.As(err, &mismatch) {
		id := mismatch.HunkID
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "context_mismatch",
			Message: err.Error(),
			HunkID:  &id,
		})
		return
	}

	var malformed *diff.MalformedDiffError
	if errors.As(err, &malformed) {
		resp := errorResponse{Error: "malformed_diff", Message: err.Error()}
		if malformed.HunkID >= 0 {
			id := malformed.HunkID
			resp.HunkID = &id
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	var notFound *engine.BackupNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "backup_not_found", err.Error())
		return
	}

	var writeFailed *engine.WriteFailedError
	if errors.As(err, &writeFailed) {
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:     "write_failed",
			Message:   err.Error(),
			BackupRef: writeFailed.BackupRef,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

// decode reads a bounded JSON body into v; on failure it writes the error
// response and reports false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}
