// Package parse reads mod details from mod files and metadata from the folder index,
// and runs those reads as batches of background tasks.
package parse

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/spf13/afero"
)

// ErrNoModInfo is returned when a mod file carries none of the known descriptors
var ErrNoModInfo = errors.New("no mod descriptor found")

const (
	fabricDescriptor   = "fabric.mod.json"
	quiltDescriptor    = "quilt.mod.json"
	forgeDescriptor    = "META-INF/mods.toml"
	neoforgeDescriptor = "META-INF/neoforge.mods.toml"
)

// platformIDs are dependencies on the game or loader itself, never on another mod
var platformIDs = map[string]bool{
	"minecraft":    true,
	"java":         true,
	"fabricloader": true,
	"fabric":       true,
	"forge":        true,
	"neoforge":     true,
	"quilt_loader": true,
}

// fileSource abstracts reading a named entry from a jar, a zip or a mod directory
type fileSource interface {
	read(name string) ([]byte, error)
}

// ParseMod reads the details of the mod stored at p
func ParseMod(fs afero.Fs, p string, typ model.ResourceType) (*model.Details, error) {
	switch typ {
	case model.ResourceFolder:
		return parseFrom(dirSource{fs: fs, root: p})
	case model.ResourceJar, model.ResourceZip:
		f, err := fs.Open(p)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		zr, err := zip.NewReader(f, info.Size())
		if err != nil {
			return nil, fmt.Errorf("failed to open archive %s: %w", p, err)
		}
		return parseFrom(zipSource{reader: zr})
	default:
		return nil, fmt.Errorf("%w: unsupported resource type %q", ErrNoModInfo, typ)
	}
}

func parseFrom(src fileSource) (*model.Details, error) {
	if data, err := src.read(fabricDescriptor); err == nil {
		return parseFabric(data)
	}
	if data, err := src.read(quiltDescriptor); err == nil {
		return parseQuilt(data)
	}
	for _, name := range []string{neoforgeDescriptor, forgeDescriptor} {
		if data, err := src.read(name); err == nil {
			return parseForge(data)
		}
	}
	return nil, ErrNoModInfo
}

type fabricModJSON struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Version     string                     `json:"version"`
	Description string                     `json:"description"`
	Authors     []json.RawMessage          `json:"authors"`
	Depends     map[string]json.RawMessage `json:"depends"`
}

func parseFabric(data []byte) (*model.Details, error) {
	var raw fabricModJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fabricDescriptor, err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("invalid %s: missing id", fabricDescriptor)
	}

	details := &model.Details{
		ModID:       raw.ID,
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		Loaders:     []string{"fabric"},
	}
	for _, author := range raw.Authors {
		if name := personName(author); name != "" {
			details.Authors = append(details.Authors, name)
		}
	}

	// depends is an object; sort its keys so the declared order is stable
	ids := make([]string, 0, len(raw.Depends))
	for id := range raw.Depends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	details.Dependencies = filterPlatform(ids)
	return details, nil
}

// personName accepts either "name" or {"name": "..."}
func personName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

type quiltModJSON struct {
	QuiltLoader struct {
		ID       string `json:"id"`
		Version  string `json:"version"`
		Metadata struct {
			Name         string            `json:"name"`
			Description  string            `json:"description"`
			Contributors map[string]string `json:"contributors"`
		} `json:"metadata"`
		Depends []json.RawMessage `json:"depends"`
	} `json:"quilt_loader"`
}

func parseQuilt(data []byte) (*model.Details, error) {
	var raw quiltModJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", quiltDescriptor, err)
	}
	ql := raw.QuiltLoader
	if ql.ID == "" {
		return nil, fmt.Errorf("invalid %s: missing id", quiltDescriptor)
	}

	details := &model.Details{
		ModID:       ql.ID,
		Name:        ql.Metadata.Name,
		Version:     ql.Version,
		Description: ql.Metadata.Description,
		Loaders:     []string{"quilt"},
	}
	for name := range ql.Metadata.Contributors {
		details.Authors = append(details.Authors, name)
	}
	sort.Strings(details.Authors)

	var ids []string
	for _, dep := range ql.Depends {
		var id string
		if err := json.Unmarshal(dep, &id); err == nil {
			ids = append(ids, id)
			continue
		}
		var obj struct {
			ID       string `json:"id"`
			Optional bool   `json:"optional"`
		}
		if err := json.Unmarshal(dep, &obj); err == nil && obj.ID != "" && !obj.Optional {
			ids = append(ids, obj.ID)
		}
	}
	details.Dependencies = filterPlatform(ids)
	return details, nil
}

type forgeModsTOML struct {
	ModLoader string `toml:"modLoader"`
	Authors   string `toml:"authors"`
	Mods      []struct {
		ModID       string `toml:"modId"`
		Version     string `toml:"version"`
		DisplayName string `toml:"displayName"`
		Description string `toml:"description"`
		Authors     string `toml:"authors"`
	} `toml:"mods"`
	Dependencies map[string][]struct {
		ModID     string `toml:"modId"`
		Mandatory *bool  `toml:"mandatory"`
		Type      string `toml:"type"`
	} `toml:"dependencies"`
}

func parseForge(data []byte) (*model.Details, error) {
	var raw forgeModsTOML
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid mods.toml: %w", err)
	}
	if len(raw.Mods) == 0 || raw.Mods[0].ModID == "" {
		return nil, errors.New("invalid mods.toml: no [[mods]] entry")
	}

	// A jar may declare several mods; the first one names the resource
	primary := raw.Mods[0]
	details := &model.Details{
		ModID:       primary.ModID,
		Name:        primary.DisplayName,
		Version:     primary.Version,
		Description: strings.TrimSpace(primary.Description),
		Loaders:     []string{"forge"},
	}
	authors := primary.Authors
	if authors == "" {
		authors = raw.Authors
	}
	for _, a := range strings.Split(authors, ",") {
		if a = strings.TrimSpace(a); a != "" {
			details.Authors = append(details.Authors, a)
		}
	}

	var ids []string
	for _, dep := range raw.Dependencies[primary.ModID] {
		if forgeRequired(dep.Mandatory, dep.Type) {
			ids = append(ids, dep.ModID)
		}
	}
	details.Dependencies = filterPlatform(ids)
	return details, nil
}

// forgeRequired handles both the old "mandatory" flag and the newer "type" field
func forgeRequired(mandatory *bool, typ string) bool {
	if typ != "" {
		return strings.EqualFold(typ, "required")
	}
	return mandatory != nil && *mandatory
}

func filterPlatform(ids []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range ids {
		if id == "" || platformIDs[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

type dirSource struct {
	fs   afero.Fs
	root string
}

func (s dirSource) read(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, filepath.Join(s.root, filepath.FromSlash(name)))
}

type zipSource struct {
	reader *zip.Reader
}

func (s zipSource) read(name string) ([]byte, error) {
	f, err := s.reader.Open(path.Clean(name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
