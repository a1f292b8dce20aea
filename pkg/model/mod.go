package model

import (
	"fmt"
	"strings"
)

// ResourceType describes how a mod is stored on disk
type ResourceType string

const (
	ResourceUnknown ResourceType = "unknown"
	ResourceJar     ResourceType = "jar"    // .jar archive
	ResourceZip     ResourceType = "zip"    // .zip archive
	ResourceFolder  ResourceType = "folder" // unpacked mod directory
)

// Provider identifies the remote platform a mod's metadata came from
type Provider string

const (
	ProviderModrinth   Provider = "modrinth"
	ProviderCurseForge Provider = "curseforge"
)

// DependencyType is the requirement kind of a remote metadata dependency
type DependencyType string

const (
	DependencyRequired     DependencyType = "required"
	DependencyOptional     DependencyType = "optional"
	DependencyIncompatible DependencyType = "incompatible"
	DependencyEmbedded     DependencyType = "embedded"
	DependencyTool         DependencyType = "tool"
	DependencyInclude      DependencyType = "include"
	DependencyUnknown      DependencyType = "unknown"
)

// ParseDependencyType maps the spellings used by the providers to a DependencyType.
// Numeric values are CurseForge relation types. Unrecognized values become DependencyUnknown.
func ParseDependencyType(s string) DependencyType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required", "requireddependency", "3":
		return DependencyRequired
	case "optional", "optionaldependency", "2":
		return DependencyOptional
	case "incompatible", "5":
		return DependencyIncompatible
	case "embedded", "embeddedlibrary", "1":
		return DependencyEmbedded
	case "tool", "4":
		return DependencyTool
	case "include", "6":
		return DependencyInclude
	default:
		return DependencyUnknown
	}
}

// ProviderDependency is a provider-scoped dependency entry from remote metadata
type ProviderDependency struct {
	AddonID string         `json:"addonId" toml:"addon-id"` // Project id on the same provider
	Type    DependencyType `json:"type" toml:"type"`
}

// Metadata is the remote (provider) metadata attached to an indexed mod
type Metadata struct {
	Provider     Provider             `json:"provider"`
	ProjectID    string               `json:"projectId"` // Opaque; numeric ids are kept in decimal form
	Name         string               `json:"name,omitempty"`
	Filename     string               `json:"filename,omitempty"`
	Dependencies []ProviderDependency `json:"dependencies,omitempty"`
}

// RequiredDependencies returns the addon ids of all REQUIRED entries, in declaration order
func (m *Metadata) RequiredDependencies() []string {
	if m == nil {
		return nil
	}
	var ids []string
	for _, dep := range m.Dependencies {
		if dep.Type == DependencyRequired {
			ids = append(ids, dep.AddonID)
		}
	}
	return ids
}

// Matches reports whether the metadata identifies the given project on the given provider
func (m *Metadata) Matches(provider Provider, projectID string) bool {
	return m != nil && m.Provider == provider && m.ProjectID == projectID
}

// Details holds what local parsing of a mod file found
type Details struct {
	ModID        string   `json:"modId"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	Loaders      []string `json:"loaders,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"` // Declared mod ids
}

// Mod is an installed resource in a mod folder.
// Identity within the folder is the internal id (file name without the .disabled suffix);
// dependency resolution uses ModID.
type Mod struct {
	InternalID string       `json:"internalId"`
	Path       string       `json:"path"`
	Type       ResourceType `json:"type"`
	Enabled    bool         `json:"enabled"`
	Size       int64        `json:"size"`

	Details  *Details  `json:"details,omitempty"`  // nil until parsed
	Metadata *Metadata `json:"metadata,omitempty"` // nil when the mod is not indexed

	RequiresCount   int `json:"requiresCount"`
	RequiredByCount int `json:"requiredByCount"`
}

// ModID returns the parsed mod id, or "" while details are unresolved
func (m *Mod) ModID() string {
	if m.Details == nil {
		return ""
	}
	return m.Details.ModID
}

// Name returns the best display name available
func (m *Mod) Name() string {
	if m.Details != nil && m.Details.Name != "" {
		return m.Details.Name
	}
	if m.Metadata != nil && m.Metadata.Name != "" {
		return m.Metadata.Name
	}
	return m.InternalID
}

// Version returns the parsed version, if any
func (m *Mod) Version() string {
	if m.Details == nil {
		return ""
	}
	return m.Details.Version
}

// Dependencies returns the declared (locally detected) dependency ids
func (m *Mod) Dependencies() []string {
	if m.Details == nil {
		return nil
	}
	return m.Details.Dependencies
}

// Provider returns the metadata provider or "" for unindexed mods
func (m *Mod) Provider() Provider {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.Provider
}

// FinishResolving stores parsed details
func (m *Mod) FinishResolving(details *Details) {
	m.Details = details
}

// SetCounts updates the cached dependency counts and reports whether they changed
func (m *Mod) SetCounts(requires, requiredBy int) bool {
	changed := m.RequiresCount != requires || m.RequiredByCount != requiredBy
	m.RequiresCount = requires
	m.RequiredByCount = requiredBy
	return changed
}

func (m *Mod) String() string {
	if id := m.ModID(); id != "" {
		return fmt.Sprintf("%s (%s)", m.InternalID, id)
	}
	return m.InternalID
}
