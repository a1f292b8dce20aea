package modfolder

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/ritzau/mod-deps/pkg/parse"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fabricJar(t *testing.T, fs afero.Fs, path, modID string, deps ...string) {
	t.Helper()
	depends := ""
	for i, d := range deps {
		if i > 0 {
			depends += ","
		}
		depends += fmt.Sprintf("%q: \"*\"", d)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("fabric.mod.json")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `{"id": %q, "name": %q, "version": "1.0", "depends": {%s}}`, modID, modID, depends)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func runAll(tasks []parse.Task) {
	for _, task := range tasks {
		task(context.Background())
	}
}

func internalIDs(mods []*model.Mod) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.InternalID)
	}
	return out
}

func TestRefresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/sodium.jar", "sodium", "fabric-api")
	fabricJar(t, fs, "/mods/fabric-api.jar.disabled", "fabric-api")
	require.NoError(t, afero.WriteFile(fs, "/mods/notes.txt", []byte("not a mod"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mods/.index/sodium.pw.toml", []byte(`
name = "Sodium"
filename = "sodium.jar"
[update.modrinth]
mod-id = "AANobbMI"
`), 0o644))

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	runAll(tasks)

	mods := folder.Mods()
	assert.Equal(t, []string{"fabric-api.jar", "sodium.jar"}, internalIDs(mods))

	api, sodium := mods[0], mods[1]
	assert.False(t, api.Enabled)
	assert.Equal(t, "/mods/fabric-api.jar.disabled", api.Path)
	assert.Equal(t, "fabric-api", api.ModID())
	assert.Nil(t, api.Metadata)

	assert.True(t, sodium.Enabled)
	assert.Equal(t, []string{"fabric-api"}, sodium.Dependencies())
	require.NotNil(t, sodium.Metadata)
	assert.Equal(t, "AANobbMI", sodium.Metadata.ProjectID)

	assert.Same(t, sodium, folder.FindByModID("sodium"))
	assert.Same(t, sodium, folder.FindByProjectID(model.ProviderModrinth, "AANobbMI"))
	assert.Nil(t, folder.FindByProjectID(model.ProviderCurseForge, "AANobbMI"))
	assert.Nil(t, folder.FindByModID(""))
}

func TestRefreshKeepsUnchangedMods(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/a.jar", "a")

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	runAll(tasks)
	first := folder.Mods()[0]

	fabricJar(t, fs, "/mods/b.jar", "b")
	tasks, err = folder.Refresh()
	require.NoError(t, err)

	assert.Len(t, tasks, 1, "only the new mod is parsed again")
	assert.Same(t, first, folder.Mods()[0], "unchanged mods keep their identity")
	assert.Equal(t, "a", first.ModID())
}

func TestRefreshDropsRemovedMods(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/a.jar", "a")
	fabricJar(t, fs, "/mods/b.jar", "b")

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	runAll(tasks)

	require.NoError(t, fs.Remove("/mods/b.jar"))
	_, err = folder.Refresh()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jar"}, internalIDs(folder.Mods()))
	_, err = folder.Find("b.jar")
	assert.ErrorIs(t, err, ErrModNotFound)
}

func TestStaleParseResultIsDiscarded(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/a.jar", "old")

	folder := New(fs, "/mods", ".index")
	stale, err := folder.Refresh()
	require.NoError(t, err)

	// The file changes before the first parse ran; the second refresh supersedes it
	fabricJar(t, fs, "/mods/a.jar", "new", "lib")
	mod := folder.Mods()[0]
	folder.states["a.jar"] = fileState{}
	fresh, err := folder.Refresh()
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	runAll(fresh)
	runAll(stale)

	assert.Equal(t, "new", mod.ModID())
}

func TestUnparsableModHasNoDetails(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mods/broken.jar", []byte("garbage"), 0o644))

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	runAll(tasks)

	mod := folder.Mods()[0]
	assert.Nil(t, mod.Details)
	assert.Empty(t, mod.ModID())
	assert.Equal(t, "broken.jar", mod.Name())
}

func TestSetEnabled(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/a.jar", "a")
	fabricJar(t, fs, "/mods/b.jar.disabled", "b")

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	runAll(tasks)
	a, b := folder.Mods()[0], folder.Mods()[1]

	require.NoError(t, folder.SetEnabled([]*model.Mod{a, b}, false))

	assert.False(t, a.Enabled)
	assert.Equal(t, "/mods/a.jar.disabled", a.Path)
	exists, _ := afero.Exists(fs, "/mods/a.jar.disabled")
	assert.True(t, exists)
	exists, _ = afero.Exists(fs, "/mods/b.jar.disabled")
	assert.True(t, exists, "already disabled mods are untouched")

	require.NoError(t, folder.SetEnabled([]*model.Mod{a, b}, true))
	for _, p := range []string{"/mods/a.jar", "/mods/b.jar"} {
		exists, _ := afero.Exists(fs, p)
		assert.True(t, exists, p)
	}

	// The rename is not a content change
	tasks, err = folder.Refresh()
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.True(t, folder.Mods()[0].Enabled)
}

func TestSetEnabledFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/a.jar", "a")

	folder := New(fs, "/mods", ".index")
	_, err := folder.Refresh()
	require.NoError(t, err)
	a := folder.Mods()[0]

	folder.fs = afero.NewReadOnlyFs(fs)
	err = folder.SetEnabled([]*model.Mod{a}, false)

	require.Error(t, err)
	assert.True(t, a.Enabled, "a failed rename leaves the mod as it was")
	assert.False(t, errors.Is(err, ErrModNotFound))
}

func TestResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	fabricJar(t, fs, "/mods/sodium-0.5.jar", "sodium")

	folder := New(fs, "/mods", ".index")
	tasks, err := folder.Refresh()
	require.NoError(t, err)
	runAll(tasks)

	byFile, err := folder.Resolve("sodium-0.5.jar")
	require.NoError(t, err)
	byModID, err := folder.Resolve("sodium")
	require.NoError(t, err)
	assert.Same(t, byFile, byModID)

	_, err = folder.Resolve("iris")
	assert.ErrorIs(t, err, ErrModNotFound)
}
