// Package filereader watches directories for audit report files (as written
// by the lighthouse CLI or Lighthouse CI) and feeds each new or rewritten
// report to the ingester.
package filereader

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tobert/chainscope/internal/storage"
)

// Ingester is the part of the ingest pipeline a FileSource needs.
type Ingester interface {
	IngestFile(ctx context.Context, path, label string) (*storage.Run, bool, error)
}

// FileSource ingests report JSON files from one directory.
// It loads existing reports at start and watches for new data.
type FileSource struct {
	directory string
	ingester  Ingester
	verbose   bool
	label     string

	watcher *fsnotify.Watcher

	// Track the size and mtime of each successfully ingested file so
	// unchanged files are never parsed twice
	mu       sync.Mutex
	files    map[string]fileState
	ingested int
	failed   int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fileState struct {
	size    int64
	modTime time.Time
}

// Config holds configuration for a FileSource.
type Config struct {
	Directory string // Directory holding report files
	Verbose   bool   // Enable verbose logging
	Label     string // Optional label applied to every run from this source
}

// New creates a new FileSource that reads from the given directory.
func New(cfg Config, ingester Ingester) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileSource{
		directory: cfg.Directory,
		ingester:  ingester,
		verbose:   cfg.Verbose,
		label:     cfg.Label,
		watcher:   watcher,
		files:     make(map[string]fileState),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins watching the directory and loading existing reports.
// It returns after the initial load completes; watching continues in background.
func (fs *FileSource) Start(ctx context.Context) error {
	if fs.verbose {
		log.Printf("📁 FileSource: starting with directory %s\n", fs.directory)
	}

	if err := fs.watcher.Add(fs.directory); err != nil {
		return fmt.Errorf("could not watch %s: %w", fs.directory, err)
	}

	if err := fs.loadInitialData(ctx); err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}

	fs.wg.Add(1)
	go fs.watchLoop()

	return nil
}

// Stop stops the file watcher and waits for goroutines to finish.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// Directory returns the directory being watched.
func (fs *FileSource) Directory() string {
	return fs.directory
}

// loadInitialData ingests every existing report, oldest first.
func (fs *FileSource) loadInitialData(ctx context.Context) error {
	files, err := findReportFiles(fs.directory)
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fs.ingest(ctx, file)
	}
	return nil
}

// isReportFile reports whether name looks like a report we should read.
// Hidden files, partial writes and the Lighthouse CI manifest are skipped.
func isReportFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	if name == "manifest.json" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ".json")
}

// findReportFiles returns report files in a directory, sorted by
// modification time so runs are stored in chronological order.
func findReportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo

	for _, entry := range entries {
		if entry.IsDir() || !isReportFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.path
	}
	return result, nil
}

// ingest hands one file to the ingester unless it is unchanged since the
// last successful ingest. Failures are logged and retried on the next write.
func (fs *FileSource) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	state := fileState{size: info.Size(), modTime: info.ModTime()}

	fs.mu.Lock()
	prev, seen := fs.files[path]
	fs.mu.Unlock()
	if seen && prev.size == state.size && prev.modTime.Equal(state.modTime) {
		return
	}

	run, dup, err := fs.ingester.IngestFile(ctx, path, fs.label)
	if err != nil {
		fs.mu.Lock()
		fs.failed++
		fs.mu.Unlock()
		log.Printf("⚠️  FileSource: error loading %s: %v\n", filepath.Base(path), err)
		return
	}

	fs.mu.Lock()
	fs.files[path] = state
	if !dup {
		fs.ingested++
	}
	fs.mu.Unlock()

	if fs.verbose {
		if dup {
			log.Printf("📁 FileSource: %s matches run %s\n", filepath.Base(path), run.ID)
		} else {
			log.Printf("📁 FileSource: ingested %s as run %s\n", filepath.Base(path), run.ID)
		}
	}
}

// watchLoop runs the file watcher event loop.
func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}

			// Only care about writes, creates and renames into place
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isReportFile(filepath.Base(event.Name)) {
				continue
			}
			fs.ingest(fs.ctx, event.Name)

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  FileSource: watcher error: %v\n", err)
		}
	}
}

// Stats describes a file source.
type Stats struct {
	Directory    string   `json:"directory"`
	WatchedDirs  []string `json:"watched_dirs"`
	FilesTracked int      `json:"files_tracked"`
	Ingested     int      `json:"ingested"`
	Failed       int      `json:"failed"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return Stats{
		Directory:    fs.directory,
		WatchedDirs:  fs.watcher.WatchList(),
		FilesTracked: len(fs.files),
		Ingested:     fs.ingested,
		Failed:       fs.failed,
	}
}
