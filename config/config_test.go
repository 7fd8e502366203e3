package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
build_dir: /work/out
board: sandbox64
fixture_cmd: [make, fixtures]
build_cmd: [buildman, --board, sandbox]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/work/out", cfg.BuildDir)
	assert.Equal(t, "sandbox64", cfg.Board)
	assert.Equal(t, []string{"make", "fixtures"}, cfg.FixtureCmd)
	assert.Equal(t, []string{"buildman", "--board", "sandbox"}, cfg.BuildCmd)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build_dir: [\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("board: sandbox64\n"), 0o644))
	t.Setenv("UBRUN_BOARD", "sandbox_spl")
	t.Setenv("UBRUN_BINARY", "/opt/u-boot")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sandbox_spl", cfg.Board)
	assert.Equal(t, "/opt/u-boot", cfg.BinaryPath())
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{BuildDir: "/tmp/b", Board: "sandbox"}
	assert.Equal(t, "/tmp/b/sandbox/u-boot", cfg.BinaryPath())
	assert.Equal(t, "/tmp/b/sandbox/persistent-data", cfg.PersistentDataDir())
	assert.Equal(t, "/tmp/b/sandbox/persistent-data/2MB.ext2.img", cfg.FixtureArtifact())
}
