package cli

// This file contains the list command for displaying previous test runs.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/history"
)

func (a *App) list(ctx *cli.Context) error {
	filterSpec := ctx.String("spec")
	limit := ctx.Int("limit")

	root, err := history.Root()
	if err != nil {
		return err
	}

	entries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply spec filter if specified
	var filtered []history.Entry
	for _, entry := range entries {
		if filterSpec == "" || specsContain(entry.Run.Specs, filterSpec) {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterSpec != "" {
			fmt.Printf("No runs found matching spec: %s\n", filterSpec)
		} else {
			fmt.Println("No runs found")
		}
		return nil
	}

	// Sort by timestamp (newest first)
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Run.Timestamp.After(filtered[j].Run.Timestamp)
	})

	// Apply limit
	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Printf("\n=== Runs (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		run := entry.Run
		timestamp := run.Timestamp.Format("2006-01-02 15:04:05")
		duration := run.Duration.Round(time.Millisecond)

		status := "✓"
		if run.ExitCode != 0 || run.Failed > 0 {
			status = "✗"
		}

		shortID := run.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Printf("%s  %s  [%s]  %d passed, %d failed, %d skipped  id=%s\n",
			status, timestamp, duration, run.Passed, run.Failed, run.Skipped, shortID)
		if len(run.Specs) > 0 {
			fmt.Printf("   Specs: %s\n", strings.Join(run.Specs, ", "))
		}
		if run.Git != nil && run.Git.Commit != "" {
			shortCommit := run.Git.Commit
			if len(shortCommit) > 8 {
				shortCommit = shortCommit[:8]
			}
			fmt.Printf("   Commit: %s", shortCommit)
			if run.Git.Branch != "" {
				fmt.Printf(" (%s)", run.Git.Branch)
			}
			fmt.Println()
		}
		if len(run.FailedTests) > 0 {
			fmt.Printf("   Failed: %s\n", strings.Join(run.FailedTests, ", "))
		}
		fmt.Println()
	}

	return nil
}

func specsContain(specs []string, substr string) bool {
	for _, spec := range specs {
		if strings.Contains(spec, substr) {
			return true
		}
	}
	return false
}
