package parse

import (
	"testing"

	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sodiumIndex = `
name = "Sodium"
filename = "sodium-fabric-0.5.8.jar"
side = "client"

[update.modrinth]
mod-id = "AANobbMI"
version = "b4hTi3mo"

[[dependencies]]
addon-id = "P7dR8mSH"
type = "required"

[[dependencies]]
addon-id = "Orvt0mRa"
type = "optional"
`

const jeiIndex = `
name = "JEI"
filename = "jei-1.20.1.jar"

[update.curseforge]
file-id = 4712868
project-id = 238222

[[dependencies]]
addon-id = 306612
type = "RequiredDependency"
`

func TestParseIndexFile(t *testing.T) {
	meta, err := ParseIndexFile([]byte(sodiumIndex))
	require.NoError(t, err)

	assert.Equal(t, model.ProviderModrinth, meta.Provider)
	assert.Equal(t, "AANobbMI", meta.ProjectID)
	assert.Equal(t, "sodium-fabric-0.5.8.jar", meta.Filename)
	assert.Equal(t, []model.ProviderDependency{
		{AddonID: "P7dR8mSH", Type: model.DependencyRequired},
		{AddonID: "Orvt0mRa", Type: model.DependencyOptional},
	}, meta.Dependencies)
}

func TestParseIndexFileNumericIDs(t *testing.T) {
	meta, err := ParseIndexFile([]byte(jeiIndex))
	require.NoError(t, err)

	assert.Equal(t, model.ProviderCurseForge, meta.Provider)
	assert.Equal(t, "238222", meta.ProjectID)
	assert.Equal(t, []string{"306612"}, meta.RequiredDependencies())
}

func TestParseIndexFileWithoutProvider(t *testing.T) {
	meta, err := ParseIndexFile([]byte(`name = "Local"` + "\n" + `filename = "local.jar"`))
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestReadIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mods/.index/sodium.pw.toml", []byte(sodiumIndex), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mods/.index/jei.pw.toml", []byte(jeiIndex), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mods/.index/broken.pw.toml", []byte("name = ["), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mods/.index/notes.txt", []byte("ignored"), 0o644))

	index, err := ReadIndex(fs, "/mods/.index")
	require.NoError(t, err)

	assert.Len(t, index, 2)
	assert.Equal(t, "AANobbMI", index["sodium-fabric-0.5.8.jar"].ProjectID)
	assert.Equal(t, "238222", index["jei-1.20.1.jar"].ProjectID)
}

func TestReadIndexMissingDirectory(t *testing.T) {
	index, err := ReadIndex(afero.NewMemMapFs(), "/nowhere/.index")
	require.NoError(t, err)
	assert.Empty(t, index)
}
