package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/parse"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeMod   ChangeType = iota // A mod file or folder was added, removed, renamed or rewritten
	ChangeTypeIndex                   // A metadata index file changed
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeMod:
		return "mod"
	case ChangeTypeIndex:
		return "index"
	}
	return "unknown"
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

const batchWindow = 100 * time.Millisecond

// FileWatcher watches a mod folder and its index for changes
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	indexDir string
	events   chan ChangeEvent
}

// NewFileWatcher creates a new file system watcher for a mod folder
func NewFileWatcher(dir, indexDir string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		dir:      filepath.Clean(dir),
		indexDir: filepath.Clean(indexDir),
		events:   make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching. The mod folder must exist; a missing index is picked up
// once it is created inside the mod folder.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watcher.Add(fw.dir); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}
	fw.watchIndex()

	logging.Info("started watching mod folder", "path", fw.dir, "index", fw.indexDir)

	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) watchIndex() {
	if _, err := os.Stat(fw.indexDir); os.IsNotExist(err) {
		logging.Debug("index directory does not exist yet, skipping", "path", fw.indexDir)
		return
	}
	if err := fw.watcher.Add(fw.indexDir); err != nil {
		logging.Warn("failed to watch index directory", "path", fw.indexDir, "error", err)
	}
}

// Classify maps a changed path to the kind of change it represents. Paths that
// can not affect the mod list or its metadata are reported as not relevant.
func Classify(path, dir, indexDir string) (ChangeType, bool) {
	parent := filepath.Dir(filepath.Clean(path))
	name := filepath.Base(path)

	switch parent {
	case filepath.Clean(indexDir):
		return ChangeTypeIndex, strings.HasSuffix(name, parse.IndexSuffix)
	case filepath.Clean(dir):
		if strings.HasPrefix(name, ".") {
			return ChangeTypeMod, false
		}
		return ChangeTypeMod, true
	}
	return ChangeTypeMod, false
}

// processEvents processes file system events and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, typ := range []ChangeType{ChangeTypeMod, ChangeTypeIndex} {
			if len(pending[typ]) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: typ, Paths: pending[typ], Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
			delete(pending, typ)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == fw.indexDir && event.Has(fsnotify.Create) {
				fw.watchIndex()
			}

			typ, relevant := Classify(event.Name, fw.dir, fw.indexDir)
			if !relevant {
				continue
			}
			logging.Trace("file change", "path", event.Name, "op", event.Op.String(), "type", typ.String())
			pending[typ] = append(pending[typ], event.Name)
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events. It is closed when the watcher stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
