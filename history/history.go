// Package history persists and loads per-run records under the
// repository's .ubrun directory.
package history

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ubrun/ubrun/model"
)

type Entry struct {
	Run      model.Run
	FullPath string
}

// NewID returns a fresh run identifier: 16 random bytes, hex encoded.
func NewID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// Root returns the .ubrun directory path from the git repository root.
func Root() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not in a git repository: %w", err)
	}
	repoRoot := strings.TrimSpace(string(output))
	return filepath.Join(repoRoot, ".ubrun"), nil
}

// Save writes run as run.json, plus the raw binary output as
// output.log when non-empty, under a new directory named
// <timestamp>-<commit>-<id> inside root, creating root as needed.
// Returns the run directory path.
func Save(root string, run model.Run, output []byte) (string, error) {
	commit := "nogit"
	if run.Git != nil && run.Git.Commit != "" {
		commit = run.Git.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
	}
	dir := filepath.Join(root, "history", fmt.Sprintf("%s-%s-%s",
		run.Timestamp.UTC().Format("20060102-150405"), commit, run.ID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run.json: %w", err)
	}
	if len(output) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "output.log"), output, 0o644); err != nil {
			return "", fmt.Errorf("failed to write output.log: %w", err)
		}
	}
	return dir, nil
}

// LoadEntries loads all run records found under root. Unparsable
// records are skipped with a warning rather than failing the listing.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("no test runs found in %s", root)
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			runPath := filepath.Join(path, "run.json")
			if _, err := os.Stat(runPath); err == nil {
				run, err := parseRunJSON(runPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", runPath).Msg("Failed to parse run.json")
					return nil
				}

				entries = append(entries, Entry{
					Run:      run,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk history directory: %w", err)
	}

	return entries, nil
}

func parseRunJSON(runPath string) (model.Run, error) {
	data, err := os.ReadFile(runPath)
	if err != nil {
		return model.Run{}, err
	}

	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}

	return run, nil
}
