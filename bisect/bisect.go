// Package bisect drives git bisect to find the first commit at which a
// test starts failing, rebuilding and re-running the test at each step.
package bisect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var reFirstBad = regexp.MustCompile(`(?m)^([0-9a-f]+) is the first bad commit`)

// Probe builds the tree at the current checkout and runs the failing
// test, reporting whether it passed. An error means the probe itself
// could not run (build breakage on an unrelated commit, say), which
// aborts the bisection.
type Probe func(ctx context.Context) (bool, error)

// Session runs one bisection. The git function is injectable so the
// whole sequence can be tested against a scripted repository.
type Session struct {
	logger zerolog.Logger
	probe  Probe
	git    func(args ...string) (string, error)

	// OnStep, when set, receives a one-line description of the commit
	// about to be probed, for an in-place progress display.
	OnStep func(text string)

	branch string // original branch, restored on completion
}

func New(logger zerolog.Logger, workDir string, probe Probe) *Session {
	return &Session{
		logger: logger,
		probe:  probe,
		git: func(args ...string) (string, error) {
			cmd := exec.Command("git", args...)
			cmd.Dir = workDir
			out, err := cmd.CombinedOutput()
			return string(out), err
		},
	}
}

// Run bisects between the upstream branch (assumed good) and HEAD
// (assumed bad) and returns the hash of the first bad commit.
func (s *Session) Run(ctx context.Context) (string, error) {
	if err := s.checkState(); err != nil {
		return "", err
	}

	upstream, err := s.git("rev-parse", "@{upstream}")
	if err != nil {
		return "", fmt.Errorf("cannot determine upstream commit: %s", strings.TrimSpace(upstream))
	}
	upstream = strings.TrimSpace(upstream)

	s.logger.Info().Str("upstream", upstream).Str("branch", s.branch).Msg("Verifying endpoints")

	// The bisection is meaningless unless HEAD fails and upstream
	// passes, so verify both before touching bisect state.
	bad, err := s.verify(ctx, "HEAD", false)
	if err != nil {
		return "", err
	}
	if !bad {
		return "", fmt.Errorf("test passes at HEAD, nothing to bisect")
	}
	good, err := s.verify(ctx, upstream, true)
	if err != nil {
		return "", err
	}
	if !good {
		return "", fmt.Errorf("test already fails at upstream %s", shortHash(upstream))
	}

	// Tear down bisect state on completion or failure, but leave it in
	// place on interrupt so the repository can be inspected manually.
	restore := true
	defer func() {
		if restore {
			s.restore()
		}
	}()

	if out, err := s.git("bisect", "start"); err != nil {
		return "", fmt.Errorf("bisect start: %s", strings.TrimSpace(out))
	}
	if hash, done, err := s.mark(false); err != nil || done {
		return hash, err
	}
	if hash, done, err := s.markCommit(upstream, true); err != nil || done {
		return hash, err
	}

	for {
		select {
		case <-ctx.Done():
			restore = false
			return "", ctx.Err()
		default:
		}

		if s.OnStep != nil {
			if out, err := s.git("log", "-1", "--format=%h %s"); err == nil {
				s.OnStep(strings.TrimSpace(out))
			}
		}

		pass, err := s.probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				restore = false
				return "", ctx.Err()
			}
			return "", fmt.Errorf("probe failed mid-bisect: %w", err)
		}
		s.logger.Info().Bool("pass", pass).Msg("Bisect step")

		hash, done, err := s.mark(pass)
		if err != nil {
			return "", err
		}
		if done {
			return hash, nil
		}
	}
}

// Subject returns the one-line commit message of hash.
func (s *Session) Subject(hash string) string {
	out, err := s.git("log", "-1", "--format=%s", hash)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// checkState refuses to start while a rebase or prior bisect is in
// flight, and remembers the current branch for restoration.
func (s *Session) checkState() error {
	status, err := s.git("status")
	if err != nil {
		return fmt.Errorf("git status: %s", strings.TrimSpace(status))
	}
	if strings.Contains(status, "rebase in progress") {
		return fmt.Errorf("rebase in progress, refusing to bisect")
	}
	if strings.Contains(status, "bisecting") {
		return fmt.Errorf("bisect already in progress, run 'git bisect reset' first")
	}

	branch, err := s.git("symbolic-ref", "--short", "HEAD")
	if err != nil {
		return fmt.Errorf("detached HEAD, checkout a branch before bisecting")
	}
	s.branch = strings.TrimSpace(branch)
	return nil
}

// verify checks out ref, probes it, and reports whether the result
// matches want pass/fail.
func (s *Session) verify(ctx context.Context, ref string, wantPass bool) (bool, error) {
	if ref != "HEAD" {
		if out, err := s.git("checkout", ref); err != nil {
			return false, fmt.Errorf("checkout %s: %s", ref, strings.TrimSpace(out))
		}
		defer s.git("checkout", s.branch)
	}
	pass, err := s.probe(ctx)
	if err != nil {
		return false, fmt.Errorf("probe at %s: %w", ref, err)
	}
	return pass == wantPass, nil
}

func (s *Session) mark(pass bool) (string, bool, error) {
	return s.markCommit("", pass)
}

// markCommit tells bisect the verdict for a commit (current checkout
// when empty) and reports whether git announced the first bad commit.
func (s *Session) markCommit(commit string, pass bool) (string, bool, error) {
	verdict := "bad"
	if pass {
		verdict = "good"
	}
	args := []string{"bisect", verdict}
	if commit != "" {
		args = append(args, commit)
	}
	out, err := s.git(args...)
	if err != nil {
		return "", false, fmt.Errorf("bisect %s: %s", verdict, strings.TrimSpace(out))
	}
	if m := reFirstBad.FindStringSubmatch(out); m != nil {
		return m[1], true, nil
	}
	return "", false, nil
}

func (s *Session) restore() {
	if out, err := s.git("bisect", "reset"); err != nil {
		s.logger.Warn().Str("output", strings.TrimSpace(out)).Msg("bisect reset failed")
	}
	if out, err := s.git("checkout", s.branch); err != nil {
		s.logger.Warn().Str("output", strings.TrimSpace(out)).Msg("branch restore failed")
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
