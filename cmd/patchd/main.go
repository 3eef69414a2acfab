// Command patchd runs the patch engine, either as a local HTTP bridge for an
// editor frontend or in one-shot mode from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/patchdesk/patchdesk/internal/audit"
	"github.com/patchdesk/patchdesk/internal/backup"
	"github.com/patchdesk/patchdesk/internal/bridge"
	"github.com/patchdesk/patchdesk/internal/config"
	"github.com/patchdesk/patchdesk/internal/diff"
	"github.com/patchdesk/patchdesk/internal/engine"
	"github.com/patchdesk/patchdesk/internal/logging"
	"github.com/patchdesk/patchdesk/internal/store"
	"github.com/patchdesk/patchdesk/internal/workspace"
)

// Version info set by ldflags at build time
var (
	version    = "dev"
	commitHash = "dev"
	buildDate  = "unknown"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgWhite, color.Faint)
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "path to config file (optional)")
	root := flag.String("root", "", "override workspace root")
	dataDir := flag.String("data", "", "override data directory")
	logFile := flag.String("log", "", "override log file path")
	addr := flag.String("addr", "", "override bridge listen address")
	serve := flag.Bool("serve", false, "run the local bridge server")
	showVersion := flag.Bool("version", false, "show version information and exit")

	// One-shot flags
	applyMode := flag.Bool("apply", false, "apply a diff to a file and exit")
	rejectMode := flag.Bool("reject", false, "record a rejected proposal and exit")
	restoreMode := flag.Bool("restore", false, "restore a file from a backup and exit")
	backupsMode := flag.Bool("backups", false, "list backups for a file and exit")
	auditMode := flag.Bool("audit", false, "list audit entries and exit")
	filePath := flag.String("file", "", "workspace-relative file path")
	diffFile := flag.String("diff", "", "path to a unified diff file")
	selectIDs := flag.String("select", "", "comma-separated hunk IDs to apply (default: all)")
	backupRef := flag.String("backup", "", "backup ref to restore from")
	notes := flag.String("notes", "", "free-form note recorded in the audit log")

	flag.Parse()

	if *showVersion {
		fmt.Printf("patchd %s (commit %s, built %s)\n", version, commitHash, buildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *root != "" {
		cfg.Workspace.Root = *root
		cfg.Data.Dir = "" // re-derive from the new root
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *logFile != "" {
		cfg.Log.Path = *logFile
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if err := cfg.Finalize(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Path, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logger.Close()

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	files, err := store.NewFSStore(cfg.Workspace.Root)
	if err != nil {
		log.Fatalf("Failed to open workspace: %v", err)
	}
	backups, err := backup.Open(cfg.Data.Dir)
	if err != nil {
		log.Fatalf("Failed to open backup store: %v", err)
	}
	defer backups.Close()
	auditLog, err := audit.Open(filepath.Join(cfg.Data.Dir, "audit.db"))
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditLog.Close()

	eng := engine.New(files, backups, auditLog, logger)
	ctx := context.Background()

	switch {
	case *serve:
		runServe(cfg, eng, files, backups, auditLog, logger)
	case *applyMode:
		runApply(ctx, eng, files, *filePath, *diffFile, *selectIDs, *notes)
	case *rejectMode:
		runReject(ctx, eng, *filePath, *diffFile, *notes)
	case *restoreMode:
		runRestore(ctx, eng, *filePath, *backupRef)
	case *backupsMode:
		runListBackups(ctx, backups, *filePath)
	case *auditMode:
		runListAudit(ctx, auditLog, *filePath)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(cfg *config.Config, eng *engine.Engine, files *store.FSStore, backups *backup.Store, auditLog *audit.Log, logger *logging.Logger) {
	lock, err := workspace.AcquireLock(cfg.Data.Dir)
	if err != nil {
		log.Fatalf("Failed to lock data directory: %v", err)
	}
	defer lock.Release()

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      bridge.NewServer(eng, files, backups, auditLog, logger).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		dimColor.Printf("patchd listening on %s (workspace %s)\n", cfg.Server.ListenAddr, files.Root())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	dimColor.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", err)
	}
}

func runApply(ctx context.Context, eng *engine.Engine, files *store.FSStore, filePath, diffFile, selectIDs, notes string) {
	d := loadDiff(filePath, diffFile)
	original := readOriginal(ctx, files, filePath)

	selection := d.SelectedIDs()
	if selectIDs != "" {
		selection = parseSelection(selectIDs, d)
	}

	outcome, err := eng.Apply(ctx, engine.ApplyRequest{
		Original:  original,
		Diff:      d,
		Selection: selection,
		Notes:     notes,
	})
	if err != nil {
		log.Fatalf("Apply failed: %v", err)
	}

	okColor.Printf("applied %d/%d hunks to %s (%d bytes)\n",
		outcome.HunksSelected, outcome.HunksTotal, filePath, outcome.BytesWritten)
	dimColor.Printf("backup ref: %s\n", outcome.BackupRef)
	if outcome.AuditWarning != nil {
		warnColor.Printf("warning: audit entry not recorded: %v\n", outcome.AuditWarning)
	}
}

func runReject(ctx context.Context, eng *engine.Engine, filePath, diffFile, notes string) {
	d := loadDiff(filePath, diffFile)
	if err := eng.Reject(ctx, d, notes); err != nil {
		log.Fatalf("Reject failed: %v", err)
	}
	okColor.Printf("rejected proposal for %s (%d hunks)\n", filePath, len(d.Hunks))
}

func runRestore(ctx context.Context, eng *engine.Engine, filePath, backupRef string) {
	if filePath == "" || backupRef == "" {
		log.Fatalf("-restore requires -file and -backup")
	}
	outcome, err := eng.Restore(ctx, filePath, backupRef, "")
	if err != nil {
		log.Fatalf("Restore failed: %v", err)
	}
	okColor.Printf("restored %s from %s (%d bytes)\n", filePath, outcome.BackupRef, outcome.BytesWritten)
	if outcome.AuditWarning != nil {
		warnColor.Printf("warning: audit entry not recorded: %v\n", outcome.AuditWarning)
	}
}

func runListBackups(ctx context.Context, backups *backup.Store, filePath string) {
	if filePath == "" {
		log.Fatalf("-backups requires -file")
	}
	records, err := backups.ListByPath(ctx, filePath)
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No backups found.")
		return
	}
	fmt.Printf("%-36s  %-20s  %s\n", "REF", "CREATED", "SIZE")
	fmt.Println(strings.Repeat("-", 70))
	for _, r := range records {
		fmt.Printf("%-36s  %-20s  %d\n", r.Ref, r.CreatedAt.Format("2006-01-02 15:04:05"), r.SizeBytes)
	}
}

func runListAudit(ctx context.Context, auditLog *audit.Log, filePath string) {
	var entries []*audit.Entry
	var err error
	if filePath != "" {
		entries, err = auditLog.ListByPath(ctx, filePath)
	} else {
		entries, err = auditLog.ListRange(ctx, time.Time{}, time.Time{})
	}
	if err != nil {
		log.Fatalf("Failed to list audit entries: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return
	}
	fmt.Printf("%-20s  %-9s  %-7s  %s\n", "CREATED", "ACTION", "HUNKS", "FILE")
	fmt.Println(strings.Repeat("-", 70))
	for _, e := range entries {
		fmt.Printf("%-20s  %-9s  %3d/%-3d  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.HunksSelected, e.HunksTotal, e.FilePath)
		if e.Notes != "" {
			dimColor.Printf("%22s%s\n", "", e.Notes)
		}
	}
}

// loadDiff reads the diff text from diffFile (or stdin when "-") and parses
// it against filePath.
func loadDiff(filePath, diffFile string) *diff.ParsedDiff {
	if filePath == "" || diffFile == "" {
		log.Fatalf("this mode requires -file and -diff")
	}
	var text []byte
	var err error
	if diffFile == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(diffFile)
	}
	if err != nil {
		log.Fatalf("Failed to read diff: %v", err)
	}
	d := diff.Parse(string(text), filePath)
	for _, w := range d.Warnings {
		warnColor.Printf("warning: %s\n", w.Message)
	}
	if len(d.Hunks) == 0 {
		log.Fatalf("Diff contains no hunks")
	}
	return d
}

func readOriginal(ctx context.Context, files *store.FSStore, filePath string) string {
	original, err := files.Read(ctx, filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "" // new file; hunks must all be insertions
		}
		log.Fatalf("Failed to read %s: %v", filePath, err)
	}
	return original
}

func parseSelection(spec string, d *diff.ParsedDiff) map[int]bool {
	selection := make(map[int]bool, len(d.Hunks))
	for i := range d.Hunks {
		selection[d.Hunks[i].ID] = false
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			log.Fatalf("Invalid hunk ID %q", part)
		}
		if _, ok := selection[id]; !ok {
			log.Fatalf("Unknown hunk ID %d (diff has %d hunks)", id, len(d.Hunks))
		}
		selection[id] = true
	}
	return selection
}

