package parse

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/spf13/afero"
)

// IndexSuffix is the file suffix of metadata files in the index directory
const IndexSuffix = ".pw.toml"

type indexFile struct {
	Name     string `toml:"name"`
	Filename string `toml:"filename"`
	Side     string `toml:"side"`
	Update   struct {
		Modrinth *struct {
			ModID   any    `toml:"mod-id"`
			Version string `toml:"version"`
		} `toml:"modrinth"`
		CurseForge *struct {
			ProjectID any `toml:"project-id"`
			FileID    any `toml:"file-id"`
		} `toml:"curseforge"`
	} `toml:"update"`
	Dependencies []struct {
		AddonID any    `toml:"addon-id"`
		Type    string `toml:"type"`
	} `toml:"dependencies"`
}

// ParseIndexFile decodes one metadata file. When both providers are present,
// modrinth wins. A file without any provider section yields nil metadata.
func ParseIndexFile(data []byte) (*model.Metadata, error) {
	var raw indexFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	meta := &model.Metadata{
		Name:     raw.Name,
		Filename: raw.Filename,
	}
	switch {
	case raw.Update.Modrinth != nil:
		meta.Provider = model.ProviderModrinth
		meta.ProjectID = opaqueID(raw.Update.Modrinth.ModID)
	case raw.Update.CurseForge != nil:
		meta.Provider = model.ProviderCurseForge
		meta.ProjectID = opaqueID(raw.Update.CurseForge.ProjectID)
	default:
		return nil, nil
	}

	for _, dep := range raw.Dependencies {
		id := opaqueID(dep.AddonID)
		if id == "" {
			continue
		}
		meta.Dependencies = append(meta.Dependencies, model.ProviderDependency{
			AddonID: id,
			Type:    model.ParseDependencyType(dep.Type),
		})
	}
	return meta, nil
}

// opaqueID renders a string or numeric project id in a comparable form
func opaqueID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case int64:
		return fmt.Sprintf("%d", id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}

// ReadIndex reads every metadata file in dir and returns them keyed by the mod
// file name they describe. A missing directory is an empty index. Files that fail
// to parse are logged and skipped.
func ReadIndex(fs afero.Fs, dir string) (map[string]*model.Metadata, error) {
	logger := logging.New("parse.index")
	index := make(map[string]*model.Metadata)

	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat index %s: %w", dir, err)
	}
	if !exists {
		return index, nil
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), IndexSuffix) {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			logger.Warn("failed to read metadata", "path", p, "error", err)
			continue
		}
		meta, err := ParseIndexFile(data)
		if err != nil {
			logger.Warn("failed to parse metadata", "path", p, "error", err)
			continue
		}
		if meta == nil || meta.Filename == "" {
			logger.Debug("metadata without provider or filename", "path", p)
			continue
		}
		index[meta.Filename] = meta
	}

	logger.Debug("index loaded", "dir", dir, "entries", len(index))
	return index, nil
}
