// Package manager ties the mod folder, the background parser, the dependency
// graph and the resolver together behind one serialised API.
package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ritzau/mod-deps/pkg/cycles"
	"github.com/ritzau/mod-deps/pkg/graph"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/metrics"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/ritzau/mod-deps/pkg/modfolder"
	"github.com/ritzau/mod-deps/pkg/parse"
	"github.com/ritzau/mod-deps/pkg/pubsub"
	"github.com/ritzau/mod-deps/pkg/resolver"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ritzau/mod-deps/pkg/manager"

// Config configures a Manager
type Config struct {
	Fs        afero.Fs // Defaults to the OS file system
	Dir       string
	IndexDir  string // Defaults to Dir/.index
	Workers   int
	Publisher pubsub.Publisher // Optional
	Metrics   *metrics.Metrics // Created when nil
}

// Manager owns one mod folder and everything derived from it
type Manager struct {
	mu sync.Mutex // Serialises refreshes, rebuilds and enable changes

	folder    *modfolder.Folder
	scheduler *parse.Scheduler
	store     *graph.Store
	resolver  *resolver.Resolver
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	cycles []cycles.ModCycle
}

// New creates a manager. Nothing is read until the first Refresh.
func New(cfg Config) *Manager {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = filepath.Join(cfg.Dir, ".index")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	m := &Manager{
		folder:    modfolder.New(cfg.Fs, cfg.Dir, cfg.IndexDir),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer(tracerName),
		cycles:    []cycles.ModCycle{},
	}
	m.store = graph.NewStore(graph.ObserverFunc(m.publishModChanged))
	m.resolver = resolver.New(m.store, m.folder)
	m.scheduler = parse.NewScheduler(cfg.Workers, m.onParseFinished)
	return m
}

// Metrics returns the manager's instruments
func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

// Refresh rescans the folder and schedules parsing of new and changed mods.
// The graph is rebuilt once the parse batch they join has finished; use WaitIdle
// to wait for that. Cancelling ctx abandons parses that have not started yet.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Refresh")
	defer span.End()

	m.publishStatus("scanning", "Scanning mod folder...", "")

	// The new tasks are reserved under the lock onParseFinished takes, so a batch
	// finishing now cannot rebuild from mods that are not parsed yet.
	m.mu.Lock()
	tasks, err := m.folder.Refresh()
	var reserved *parse.Reservation
	if err == nil {
		reserved = m.scheduler.Reserve(len(tasks))
	}
	m.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.publishStatus("error", err.Error(), "")
		return "", fmt.Errorf("refresh failed: %w", err)
	}

	if len(tasks) > 0 {
		m.publishStatus("parsing", fmt.Sprintf("Parsing %d mods...", len(tasks)), "")
	}

	// Started outside the lock: an empty batch on an idle scheduler completes
	// here and rebuilds under the lock.
	reserved.Start(ctx, tasks)
	batch := reserved.Batch()
	m.metrics.PendingParses.Set(float64(m.scheduler.Pending()))
	span.SetAttributes(
		attribute.Int("mods.parse", len(tasks)),
		attribute.String("batch", batch),
	)

	logging.DebugContext(ctx, "refresh scheduled", "batch", batch, "tasks", len(tasks))
	return batch, nil
}

// WaitIdle blocks until no parse batch is running and the graph reflects the last refresh
func (m *Manager) WaitIdle(ctx context.Context) error {
	return m.scheduler.Wait(ctx)
}

func (m *Manager) onParseFinished(batch string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.ParseBatches.Inc()
	pending := m.scheduler.Pending()
	m.metrics.PendingParses.Set(float64(pending))
	if pending > 0 {
		// A new batch started in the meantime and will rebuild when it is done
		logging.Debug("skipping rebuild, parses still in flight", "batch", batch, "pending", pending)
		return
	}
	m.rebuild(batch)
}

// rebuild must be called with m.mu held
func (m *Manager) rebuild(batch string) {
	_, span := m.tracer.Start(context.Background(), "manager.rebuild",
		trace.WithAttributes(attribute.String("batch", batch)))
	defer span.End()

	start := time.Now()
	mods := m.folder.Mods()
	var g *graph.ModGraph
	m.folder.View(func() {
		g = m.store.Rebuild(mods)
	})
	m.cycles = cycles.FindModCycles(g)

	enabled := 0
	for _, mod := range mods {
		if mod.Enabled {
			enabled++
		}
	}
	m.metrics.Rebuilds.Inc()
	m.metrics.RebuildSeconds.Observe(time.Since(start).Seconds())
	m.metrics.Mods.Set(float64(len(mods)))
	m.metrics.EnabledMods.Set(float64(enabled))
	m.metrics.Edges.Set(float64(g.EdgeCount()))
	m.metrics.Cycles.Set(float64(len(m.cycles)))

	span.SetAttributes(
		attribute.Int("mods", len(mods)),
		attribute.Int("edges", g.EdgeCount()),
		attribute.Int("cycles", len(m.cycles)),
	)

	for _, c := range m.cycles {
		logging.Warn("dependency cycle", "mods", c.ModIDs)
	}
	logging.Info("dependency graph rebuilt",
		"batch", batch,
		"mods", len(mods),
		"edges", g.EdgeCount(),
		"cycles", len(m.cycles),
	)
	m.publish(pubsub.TopicFolderStatus, "ready", pubsub.FolderStatus{
		State:   "ready",
		Message: "Dependency graph ready",
		Mods:    len(mods),
		Pending: m.scheduler.Pending(),
		Edges:   g.EdgeCount(),
		Batch:   batch,
	})
}

// Affected returns copies of the mods that would change along with the selection.
// A toggle of more than one mod affects nothing else.
func (m *Manager) Affected(ids []string, action model.EnableAction) ([]model.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	selection, err := m.resolveAll(ids)
	if err != nil {
		return nil, err
	}
	out := []model.Mod{}
	m.folder.View(func() {
		for _, mod := range m.resolver.ComputeAffected(selection, action) {
			out = append(out, *mod)
		}
	})
	return out, nil
}

// SetEnabled applies action to the selection and every affected mod and returns
// copies of the mods whose enabled state changed. Toggling several mods flips each
// of them without cascading. On error, mods changed before the failure keep their state.
func (m *Manager) SetEnabled(ctx context.Context, ids []string, action model.EnableAction) ([]model.Mod, error) {
	ctx, span := m.tracer.Start(ctx, "manager.SetEnabled", trace.WithAttributes(
		attribute.String("action", action.String()),
		attribute.Int("selected", len(ids)),
	))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	selection, err := m.resolveAll(ids)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	before := make(map[*model.Mod]bool)
	for _, mod := range m.folder.Mods() {
		before[mod] = mod.Enabled
	}

	applyErr := m.resolver.Apply(selection, action)

	changed := []model.Mod{}
	m.folder.View(func() {
		for mod, was := range before {
			if mod.Enabled != was {
				changed = append(changed, *mod)
			}
		}
	})
	sort.Slice(changed, func(i, j int) bool { return changed[i].InternalID < changed[j].InternalID })
	for i := range changed {
		m.publishModChanged(&changed[i])
	}
	if len(changed) > 0 {
		m.metrics.Changes.WithLabelValues(action.String()).Add(float64(len(changed)))
	}
	m.metrics.EnabledMods.Set(float64(m.enabledCount()))
	span.SetAttributes(attribute.Int("changed", len(changed)))

	if applyErr != nil {
		m.metrics.ChangeErrors.WithLabelValues(action.String()).Inc()
		span.RecordError(applyErr)
		span.SetStatus(codes.Error, applyErr.Error())
		logging.ErrorContext(ctx, "failed to apply enable action", "action", action.String(), "error", applyErr)
		return changed, applyErr
	}
	return changed, nil
}

// Mods returns copies of all mods in folder order
func (m *Manager) Mods() []model.Mod {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folder.Snapshot()
}

// Mod returns a copy of the mod with the given internal id or mod id
func (m *Manager) Mod(ref string) (model.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mod, err := m.folder.Resolve(ref)
	if err != nil {
		return model.Mod{}, err
	}
	var out model.Mod
	m.folder.View(func() { out = *mod })
	return out, nil
}

// RequiresList returns the display names of the mods ref requires
func (m *Manager) RequiresList(ref string) ([]string, error) {
	return m.neighbourNames(ref, (*graph.ModGraph).RequiresList)
}

// RequiredByList returns the display names of the mods that require ref
func (m *Manager) RequiredByList(ref string) ([]string, error) {
	return m.neighbourNames(ref, (*graph.ModGraph).RequiredByList)
}

func (m *Manager) neighbourNames(ref string, list func(*graph.ModGraph, string) []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mod, err := m.folder.Resolve(ref)
	if err != nil {
		return nil, err
	}
	var names []string
	m.folder.View(func() {
		names = list(m.store.Current(), mod.ModID())
	})
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Graph exports the published dependency graph
func (m *Manager) Graph() *model.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()

	mods := m.folder.Mods()
	var out *model.Graph
	m.folder.View(func() {
		out = m.store.Current().Export(mods)
	})
	return out
}

// Cycles returns the dependency cycles found in the last rebuild
func (m *Manager) Cycles() []cycles.ModCycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cycles.ModCycle, len(m.cycles))
	copy(out, m.cycles)
	return out
}

// resolveAll must be called with m.mu held. Duplicate references are collapsed.
func (m *Manager) resolveAll(ids []string) ([]*model.Mod, error) {
	seen := make(map[*model.Mod]bool, len(ids))
	selection := make([]*model.Mod, 0, len(ids))
	for _, id := range ids {
		mod, err := m.folder.Resolve(id)
		if err != nil {
			return nil, err
		}
		if seen[mod] {
			continue
		}
		seen[mod] = true
		selection = append(selection, mod)
	}
	return selection, nil
}

func (m *Manager) enabledCount() int {
	n := 0
	for _, mod := range m.folder.Snapshot() {
		if mod.Enabled {
			n++
		}
	}
	return n
}

func (m *Manager) publishModChanged(mod *model.Mod) {
	m.publish(pubsub.TopicModChanged, "changed", pubsub.ModChanged{
		InternalID:      mod.InternalID,
		ModID:           mod.ModID(),
		Enabled:         mod.Enabled,
		RequiresCount:   mod.RequiresCount,
		RequiredByCount: mod.RequiredByCount,
	})
}

func (m *Manager) publishStatus(state, message, batch string) {
	m.publish(pubsub.TopicFolderStatus, state, pubsub.FolderStatus{
		State:   state,
		Message: message,
		Pending: m.scheduler.Pending(),
		Batch:   batch,
	})
}

func (m *Manager) publish(topic, eventType string, data any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(topic, eventType, data); err != nil {
		logging.Debug("failed to publish event", "topic", topic, "type", eventType, "error", err)
	}
}
