package model

import "time"

// Run records one test invocation for the history listing.
type Run struct {
	// Unique ID for this run (16 random bytes, hex encoded)
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory where the run happened (relative to repo root)
	WorkDir string `json:"workdir"`
	// Exit code of the test binary (first non-zero across workers)
	ExitCode int `json:"exit_code"`
	// Wall-clock duration of the run
	Duration time.Duration `json:"duration"`
	// Git information
	Git *Git `json:"git,omitempty"`

	// Canonical test specs that were run
	Specs []string `json:"specs"`
	// Worker process count (0 or 1 means sequential)
	Workers int `json:"workers,omitempty"`
	// Predicted number of test runs
	Predicted int `json:"predicted"`
	// Actual number of test runs observed
	Ran     int `json:"ran"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	// Names of the failed tests
	FailedTests []string `json:"failed_tests,omitempty"`
}

// Git contains repository state at the time of the run.
type Git struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}
