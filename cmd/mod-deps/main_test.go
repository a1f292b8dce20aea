package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func writeFabricJar(t *testing.T, path, modID string, deps ...string) {
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
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// a (disabled) requires b (disabled) requires c (enabled)
func modDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	writeFabricJar(t, filepath.Join(dir, "a.jar.disabled"), "a", "b")
	writeFabricJar(t, filepath.Join(dir, "b.jar.disabled"), "b", "c")
	writeFabricJar(t, filepath.Join(dir, "c.jar"), "c")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	dir := modDir(t)

	out, err := run(t, "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "a.jar")
	assert.Contains(t, out, "requires 1, required by 1")
	assert.Contains(t, out, "Summary: 3 mods, 1 enabled, 2 disabled")
}

func TestAffected(t *testing.T) {
	dir := modDir(t)

	out, err := run(t, "affected", "--dir", dir, "a")
	require.NoError(t, err)
	assert.Contains(t, out, "Also affects 1 mod(s):")
	assert.Contains(t, out, "b.jar (b)")

	_, err = run(t, "affected", "--dir", dir, "--action", "sideways", "a")
	assert.Error(t, err)
}

func TestEnableAndDisable(t *testing.T) {
	dir := modDir(t)

	out, err := run(t, "enable", "--dir", dir, "a")
	require.NoError(t, err)
	assert.Contains(t, out, "Changed 2 mod(s)")
	assert.FileExists(t, filepath.Join(dir, "a.jar"))
	assert.FileExists(t, filepath.Join(dir, "b.jar"))

	out, err = run(t, "disable", "--dir", dir, "c")
	require.NoError(t, err)
	assert.Contains(t, out, "Changed 3 mod(s)")
	assert.FileExists(t, filepath.Join(dir, "c.jar.disabled"))
}

func TestToggleUnknownMod(t *testing.T) {
	dir := modDir(t)

	_, err := run(t, "toggle", "--dir", dir, "nope")
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	dir := modDir(t)
	t.Setenv("MOD_DEPS_DIR", dir)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: 3 mods")
}
