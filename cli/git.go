package cli

// This file contains Git integration utilities for recording
// repository state alongside test runs.

import (
	"os/exec"
	"strings"

	"github.com/ubrun/ubrun/model"
)

// gitInfo captures the current commit and branch of the source tree,
// or nil when not inside a git repository. History records are still
// written without it.
func (a *App) gitInfo() *model.Git {
	commit, err := gitOutput("rev-parse", "HEAD")
	if err != nil {
		a.logger.Debug().Err(err).Msg("Not in a git repository, skipping git info")
		return nil
	}
	// Branch is best-effort; detached HEAD reports "HEAD".
	branch, _ := gitOutput("rev-parse", "--abbrev-ref", "HEAD")
	return &model.Git{Commit: commit, Branch: branch}
}

func gitOutput(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
