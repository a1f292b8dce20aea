package parse

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJar(t *testing.T, fs afero.Fs, name string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entry, content := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, name, buf.Bytes(), 0o644))
}

func TestParseModFabric(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJar(t, fs, "/mods/sodium.jar", map[string]string{
		"fabric.mod.json": `{
			"schemaVersion": 1,
			"id": "sodium",
			"name": "Sodium",
			"version": "0.5.8",
			"authors": ["jellysquid3", {"name": "IMS"}],
			"depends": {"minecraft": ">=1.20", "fabricloader": "*", "fabric-api": "*", "indium": "*"}
		}`,
	})

	details, err := ParseMod(fs, "/mods/sodium.jar", model.ResourceJar)
	require.NoError(t, err)

	assert.Equal(t, "sodium", details.ModID)
	assert.Equal(t, "Sodium", details.Name)
	assert.Equal(t, "0.5.8", details.Version)
	assert.Equal(t, []string{"jellysquid3", "IMS"}, details.Authors)
	assert.Equal(t, []string{"fabric-api", "indium"}, details.Dependencies)
}

func TestParseModQuilt(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJar(t, fs, "/mods/qsl.jar", map[string]string{
		"quilt.mod.json": `{
			"quilt_loader": {
				"id": "qsl_base",
				"version": "7.0.0",
				"metadata": {"name": "QSL Base"},
				"depends": ["quilt_loader", {"id": "quilted_fabric_api"}, {"id": "modmenu", "optional": true}]
			}
		}`,
	})

	details, err := ParseMod(fs, "/mods/qsl.jar", model.ResourceJar)
	require.NoError(t, err)

	assert.Equal(t, "qsl_base", details.ModID)
	assert.Equal(t, []string{"quilted_fabric_api"}, details.Dependencies)
}

func TestParseModForge(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJar(t, fs, "/mods/create.jar", map[string]string{
		"META-INF/mods.toml": `
modLoader = "javafml"
loaderVersion = "[47,)"

[[mods]]
modId = "create"
version = "0.5.1"
displayName = "Create"
authors = "simibubi, Eriksonn"

[[dependencies.create]]
modId = "forge"
mandatory = true

[[dependencies.create]]
modId = "flywheel"
mandatory = true

[[dependencies.create]]
modId = "jei"
mandatory = false

[[dependencies.create]]
modId = "registrate"
type = "required"
`,
	})

	details, err := ParseMod(fs, "/mods/create.jar", model.ResourceJar)
	require.NoError(t, err)

	assert.Equal(t, "create", details.ModID)
	assert.Equal(t, "Create", details.Name)
	assert.Equal(t, []string{"simibubi", "Eriksonn"}, details.Authors)
	assert.Equal(t, []string{"flywheel", "registrate"}, details.Dependencies)
}

func TestParseModFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mods/devmod/fabric.mod.json",
		[]byte(`{"id": "devmod", "version": "1.0", "depends": {"lib": "*"}}`), 0o644))

	details, err := ParseMod(fs, "/mods/devmod", model.ResourceFolder)
	require.NoError(t, err)

	assert.Equal(t, "devmod", details.ModID)
	assert.Equal(t, []string{"lib"}, details.Dependencies)
}

func TestParseModWithoutDescriptor(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJar(t, fs, "/mods/plain.jar", map[string]string{"README.txt": "hello"})

	_, err := ParseMod(fs, "/mods/plain.jar", model.ResourceJar)
	assert.True(t, errors.Is(err, ErrNoModInfo), "got %v", err)
}

func TestParseModCorruptArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mods/broken.jar", []byte("not a zip"), 0o644))

	_, err := ParseMod(fs, "/mods/broken.jar", model.ResourceJar)
	assert.Error(t, err)
}
