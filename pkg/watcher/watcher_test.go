package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		wantType ChangeType
		relevant bool
	}{
		{"/mods/sodium.jar", ChangeTypeMod, true},
		{"/mods/sodium.jar.disabled", ChangeTypeMod, true},
		{"/mods/some-folder", ChangeTypeMod, true},
		{"/mods/.hidden", ChangeTypeMod, false},
		{"/mods/.index/sodium.pw.toml", ChangeTypeIndex, true},
		{"/mods/.index/notes.txt", ChangeTypeIndex, false},
		{"/elsewhere/sodium.jar", ChangeTypeMod, false},
		{"/mods/sub/inner.jar", ChangeTypeMod, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			typ, relevant := Classify(tt.path, "/mods", "/mods/.index")
			assert.Equal(t, tt.relevant, relevant)
			if tt.relevant {
				assert.Equal(t, tt.wantType, typ)
			}
		})
	}
}

func TestAnalyzeChanges(t *testing.T) {
	analysis := AnalyzeChanges(
		ChangeEvent{Type: ChangeTypeMod, Paths: []string{"/mods/a.jar"}},
		ChangeEvent{Type: ChangeTypeIndex, Paths: []string{"/mods/.index/a.pw.toml"}},
	)
	assert.True(t, analysis.ModsChanged)
	assert.True(t, analysis.IndexChanged)
	assert.Len(t, analysis.ChangedFiles, 2)
	assert.Equal(t, "2 mod and index files changed", analysis.Reason())

	analysis = AnalyzeChanges(ChangeEvent{Type: ChangeTypeIndex, Paths: []string{"x"}})
	assert.False(t, analysis.ModsChanged)
	assert.Equal(t, "1 index files changed", analysis.Reason())
}

func TestDebouncerMergesBursts(t *testing.T) {
	input := make(chan ChangeEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(input, 200*time.Millisecond, 5*time.Second)
	d.Start(ctx)

	input <- ChangeEvent{Type: ChangeTypeIndex, Paths: []string{"i1"}}
	input <- ChangeEvent{Type: ChangeTypeMod, Paths: []string{"m1"}}
	input <- ChangeEvent{Type: ChangeTypeMod, Paths: []string{"m2"}}

	var got []ChangeEvent
	for len(got) < 2 {
		select {
		case event := <-d.Output():
			got = append(got, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %d events", len(got))
		}
	}

	assert.Equal(t, ChangeTypeMod, got[0].Type)
	assert.Equal(t, []string{"m1", "m2"}, got[0].Paths)
	assert.Equal(t, ChangeTypeIndex, got[1].Type)
	assert.Equal(t, []string{"i1"}, got[1].Paths)
}

func TestDebouncerFlushesOnClose(t *testing.T) {
	input := make(chan ChangeEvent, 1)
	d := NewDebouncer(input, time.Hour, time.Hour)
	d.Start(context.Background())

	input <- ChangeEvent{Type: ChangeTypeMod, Paths: []string{"m1"}}
	close(input)

	event, ok := <-d.Output()
	require.True(t, ok)
	assert.Equal(t, []string{"m1"}, event.Paths)

	_, ok = <-d.Output()
	assert.False(t, ok)
}

func TestDebouncerStopsWhenNobodyReads(t *testing.T) {
	input := make(chan ChangeEvent, 20)
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDebouncer(input, time.Millisecond, time.Hour)
	d.Start(ctx)

	// More flushes than the output buffer holds, with no reader
	for i := 0; i < 15; i++ {
		input <- ChangeEvent{Type: ChangeTypeMod, Paths: []string{"m"}}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	received := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-d.Output():
			if !ok {
				assert.Equal(t, 10, received, "the blocked flush is abandoned on cancel")
				return
			}
			received++
		case <-timeout:
			t.Fatalf("output not closed after cancel, received %d", received)
		}
	}
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return "batch", nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRefreshOnChange(t *testing.T) {
	events := make(chan ChangeEvent, 2)
	events <- ChangeEvent{Type: ChangeTypeMod, Paths: []string{"a"}}
	events <- ChangeEvent{Type: ChangeTypeIndex, Paths: []string{"b"}}
	close(events)

	r := &countingRefresher{}
	RefreshOnChange(context.Background(), events, r)
	assert.Equal(t, 2, r.count())
}

func TestFileWatcherReportsModChanges(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, ".index")
	require.NoError(t, os.Mkdir(indexDir, 0o755))

	fw, err := NewFileWatcher(dir, indexDir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jar"), []byte("jar"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "a.pw.toml"), []byte("name = 'a'"), 0o644))

	seen := map[ChangeType]bool{}
	deadline := time.After(5 * time.Second)
	for !seen[ChangeTypeMod] || !seen[ChangeTypeIndex] {
		select {
		case event := <-fw.Events():
			seen[event.Type] = true
		case <-deadline:
			t.Fatalf("timeout, saw %v", seen)
		}
	}

	cancel()
	for range fw.Events() {
	}
}
