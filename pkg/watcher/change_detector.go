package watcher

import (
	"context"
	"fmt"

	"github.com/ritzau/mod-deps/pkg/logging"
)

// ChangeAnalysis describes what changed and why a rescan is needed
type ChangeAnalysis struct {
	ModsChanged  bool
	IndexChanged bool
	ChangedFiles []string
}

// Reason returns a short description for logs
func (a *ChangeAnalysis) Reason() string {
	switch {
	case a.ModsChanged && a.IndexChanged:
		return fmt.Sprintf("%d mod and index files changed", len(a.ChangedFiles))
	case a.IndexChanged:
		return fmt.Sprintf("%d index files changed", len(a.ChangedFiles))
	default:
		return fmt.Sprintf("%d mod files changed", len(a.ChangedFiles))
	}
}

// AnalyzeChanges merges change events into one analysis
func AnalyzeChanges(events ...ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{}
	for _, event := range events {
		analysis.ChangedFiles = append(analysis.ChangedFiles, event.Paths...)
		switch event.Type {
		case ChangeTypeMod:
			// The folder scan compares file size and time, so only changed mods are reparsed
			analysis.ModsChanged = true
		case ChangeTypeIndex:
			// Metadata is reread in full on every scan
			analysis.IndexChanged = true
		}
	}
	return analysis
}

// Refresher rescans a mod folder
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshOnChange triggers a refresh for every event until events is closed or
// ctx is done. Failed refreshes are logged and do not stop the loop.
func RefreshOnChange(ctx context.Context, events <-chan ChangeEvent, r Refresher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			analysis := AnalyzeChanges(event)
			logging.Info("mod folder changed, rescanning", "reason", analysis.Reason())
			if _, err := r.Refresh(ctx); err != nil {
				logging.Error("rescan failed", "error", err)
			}
		}
	}
}
