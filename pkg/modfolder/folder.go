// Package modfolder is the resource collection backing the dependency engine:
// a directory of mod files whose enabled state is encoded in the file name.
package modfolder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/ritzau/mod-deps/pkg/parse"
	"github.com/spf13/afero"
)

// DisabledSuffix marks a disabled mod file or directory
const DisabledSuffix = ".disabled"

// ErrModNotFound is returned when an id does not name a mod in the folder
var ErrModNotFound = errors.New("mod not found")

// fileState is what a refresh compares to decide whether a mod must be re-parsed
type fileState struct {
	modTime time.Time
	size    int64
}

func (s fileState) same(o fileState) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// Folder holds the mods of one directory, ordered by internal id
type Folder struct {
	fs       afero.Fs
	dir      string
	indexDir string

	mu      sync.RWMutex
	mods    []*model.Mod
	byID    map[string]*model.Mod // internal id -> mod
	states  map[string]fileState  // internal id -> file state at last parse
	tickets map[string]uint64     // internal id -> ticket of the parse that may update it
	next    uint64
}

// New creates a folder over dir. indexDir is relative to dir.
func New(fs afero.Fs, dir, indexDir string) *Folder {
	return &Folder{
		fs:       fs,
		dir:      dir,
		indexDir: filepath.Join(dir, indexDir),
		byID:     make(map[string]*model.Mod),
		states:   make(map[string]fileState),
		tickets:  make(map[string]uint64),
	}
}

// Dir returns the folder path
func (f *Folder) Dir() string {
	return f.dir
}

// IndexDir returns the metadata index path
func (f *Folder) IndexDir() string {
	return f.indexDir
}

// Refresh rescans the directory and the index. Mods whose files are unchanged keep
// their parsed details; new and changed mods get a parse task in the returned list.
// Results of tasks from earlier refreshes for the same mod are discarded.
func (f *Folder) Refresh() ([]parse.Task, error) {
	logger := logging.New("modfolder")

	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mod folder %s: %w", f.dir, err)
	}
	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mod folder %s: %w", f.dir, err)
	}
	index, err := parse.ReadIndex(f.fs, f.indexDir)
	if err != nil {
		logger.Warn("ignoring unreadable index", "error", err)
		index = map[string]*model.Metadata{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		mods  []*model.Mod
		tasks []parse.Task
		seen  = make(map[string]bool)
	)
	for _, entry := range entries {
		internalID, enabled, typ, ok := classify(entry)
		if !ok {
			continue
		}
		if seen[internalID] {
			logger.Warn("mod present both enabled and disabled, ignoring duplicate", "mod", entry.Name())
			continue
		}
		seen[internalID] = true

		state := fileState{modTime: entry.ModTime(), size: entry.Size()}
		mod, exists := f.byID[internalID]
		if !exists {
			mod = &model.Mod{InternalID: internalID}
		}
		mod.Path = filepath.Join(f.dir, entry.Name())
		mod.Type = typ
		mod.Enabled = enabled
		mod.Size = entry.Size()
		mod.Metadata = index[internalID]
		mods = append(mods, mod)

		if prev, parsed := f.states[internalID]; exists && parsed && prev.same(state) {
			continue
		}
		f.states[internalID] = state
		tasks = append(tasks, f.parseTask(mod))
	}

	sort.Slice(mods, func(i, j int) bool { return mods[i].InternalID < mods[j].InternalID })

	byID := make(map[string]*model.Mod, len(mods))
	for _, mod := range mods {
		byID[mod.InternalID] = mod
	}
	for id := range f.byID {
		if byID[id] == nil {
			delete(f.states, id)
			delete(f.tickets, id)
		}
	}
	f.mods = mods
	f.byID = byID

	logger.Info("mod folder scanned", "dir", f.dir, "mods", len(mods), "toParse", len(tasks), "indexed", len(index))
	return tasks, nil
}

// parseTask must be called with f.mu held
func (f *Folder) parseTask(mod *model.Mod) parse.Task {
	f.next++
	ticket := f.next
	f.tickets[mod.InternalID] = ticket
	internalID, p, typ := mod.InternalID, mod.Path, mod.Type

	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		details, err := parse.ParseMod(f.fs, p, typ)
		f.finishParse(internalID, ticket, details, err)
	}
}

func (f *Folder) finishParse(internalID string, ticket uint64, details *model.Details, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tickets[internalID] != ticket {
		logging.Trace("discarding stale parse result", "mod", internalID, "ticket", ticket)
		return
	}
	mod := f.byID[internalID]
	if mod == nil {
		return
	}
	if err != nil {
		logging.Warn("failed to parse mod", "mod", internalID, "error", err)
		mod.FinishResolving(nil)
		return
	}
	mod.FinishResolving(details)
	logging.Trace("parsed mod", "mod", internalID, "modId", details.ModID, "dependencies", len(details.Dependencies))
}

// classify maps a directory entry to a mod internal id, or ok=false if it is not a mod
func classify(entry os.FileInfo) (internalID string, enabled bool, typ model.ResourceType, ok bool) {
	name := entry.Name()
	if strings.HasPrefix(name, ".") {
		return "", false, "", false
	}
	internalID = strings.TrimSuffix(name, DisabledSuffix)
	enabled = internalID == name

	switch {
	case entry.IsDir():
		typ = model.ResourceFolder
	case strings.HasSuffix(strings.ToLower(internalID), ".jar"):
		typ = model.ResourceJar
	case strings.HasSuffix(strings.ToLower(internalID), ".zip"):
		typ = model.ResourceZip
	default:
		return "", false, "", false
	}
	return internalID, enabled, typ, true
}

// Mods returns the mods in stable (internal id) order. The mods are live; use View
// or Snapshot when reading them concurrently with parsing.
func (f *Folder) Mods() []*model.Mod {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*model.Mod, len(f.mods))
	copy(out, f.mods)
	return out
}

// Snapshot returns copies of the mods, safe to read without further locking
func (f *Folder) Snapshot() []model.Mod {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Mod, len(f.mods))
	for i, mod := range f.mods {
		out[i] = *mod
	}
	return out
}

// View runs fn while parse results are held back
func (f *Folder) View(fn func()) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn()
}

// Find resolves an internal id
func (f *Folder) Find(internalID string) (*model.Mod, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if mod := f.byID[internalID]; mod != nil {
		return mod, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModNotFound, internalID)
}

// FindByModID returns the first mod, in folder order, with the given mod id
func (f *Folder) FindByModID(modID string) *model.Mod {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, mod := range f.mods {
		if mod.ModID() == modID && modID != "" {
			return mod
		}
	}
	return nil
}

// FindByProjectID returns the first mod, in folder order, indexed under the given project
func (f *Folder) FindByProjectID(provider model.Provider, projectID string) *model.Mod {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, mod := range f.mods {
		if mod.Metadata.Matches(provider, projectID) {
			return mod
		}
	}
	return nil
}

// Resolve looks a reference up as an internal id first, then as a mod id
func (f *Folder) Resolve(ref string) (*model.Mod, error) {
	if mod, err := f.Find(ref); err == nil {
		return mod, nil
	}
	if mod := f.FindByModID(ref); mod != nil {
		return mod, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModNotFound, ref)
}

// SetEnabled renames each mod's file to add or strip the disabled suffix.
// Mods already in the requested state are left alone. The first failing rename
// stops the operation; mods renamed before it keep their new state.
func (f *Folder) SetEnabled(mods []*model.Mod, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := 0
	for _, mod := range mods {
		if mod.Enabled == enabled {
			continue
		}
		target := filepath.Join(f.dir, mod.InternalID)
		if !enabled {
			target += DisabledSuffix
		}
		if err := f.fs.Rename(mod.Path, target); err != nil {
			return fmt.Errorf("failed to rename %s: %w", filepath.Base(mod.Path), err)
		}
		mod.Path = target
		mod.Enabled = enabled
		changed++
	}

	logging.Debug("mod enabled state updated", "enabled", enabled, "requested", len(mods), "renamed", changed)
	return nil
}
