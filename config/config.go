// Package config holds the tool configuration. It is loaded once at
// process start and passed by value into the components that need it;
// nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the per-user configuration file, relative to $HOME.
const DefaultFile = ".ubrunrc.yaml"

// fixtureArtifact is the file whose existence marks the one-time
// fixture generation step as done.
const fixtureArtifact = "2MB.ext2.img"

type Config struct {
	// BuildDir is the base directory holding per-board build output.
	BuildDir string `yaml:"build_dir"`
	// Board selects the build subdirectory (and the test binary name).
	Board string `yaml:"board"`
	// Binary overrides the test binary path derived from BuildDir/Board.
	Binary string `yaml:"binary"`
	// FixtureCmd generates the persistent test data files (run once,
	// memoized on the fixture artifact).
	FixtureCmd []string `yaml:"fixture_cmd"`
	// BuildCmd rebuilds the board; used as the bisection probe.
	BuildCmd []string `yaml:"build_cmd"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		BuildDir: "/tmp/b",
		Board:    "sandbox",
	}
}

// Load reads the configuration file at path, falling back to defaults
// if it does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if v := os.Getenv("UBRUN_BUILD_DIR"); v != "" {
		cfg.BuildDir = v
	}
	if v := os.Getenv("UBRUN_BOARD"); v != "" {
		cfg.Board = v
	}
	if v := os.Getenv("UBRUN_BINARY"); v != "" {
		cfg.Binary = v
	}
	return cfg, nil
}

// LoadDefault loads the configuration from the user's home directory.
func LoadDefault() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Default(), nil
	}
	return Load(filepath.Join(home, DefaultFile))
}

// BinaryPath returns the path to the compiled test binary.
func (c Config) BinaryPath() string {
	if c.Binary != "" {
		return c.Binary
	}
	return filepath.Join(c.BuildDir, c.Board, "u-boot")
}

// PersistentDataDir returns the shared fixture directory read by all
// test workers.
func (c Config) PersistentDataDir() string {
	return filepath.Join(c.BuildDir, c.Board, "persistent-data")
}

// FixtureArtifact returns the file checked to decide whether fixture
// generation has already run.
func (c Config) FixtureArtifact() string {
	return filepath.Join(c.PersistentDataDir(), fixtureArtifact)
}
