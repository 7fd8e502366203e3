package cli

// This file contains the bisect command, which rebuilds and re-runs a
// failing test at each git bisect step.

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/bisect"
	"github.com/ubrun/ubrun/config"
	"github.com/ubrun/ubrun/progress"
	"github.com/ubrun/ubrun/runner"
	"github.com/ubrun/ubrun/testspec"
)

func (a *App) bisect(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("bisect needs a test spec, e.g. 'ubrun bisect dm_test_video_base'")
	}
	specs := testspec.Parse(ctx.Args().Slice())

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	probe := func(pctx context.Context) (bool, error) {
		if err := a.rebuild(pctx); err != nil {
			return false, err
		}
		res, err := runner.New(a.cfg, a.logger).Run(pctx, specs, len(specs), runner.Options{})
		if err != nil {
			return false, err
		}
		if res.NoResults {
			return false, fmt.Errorf("binary exited with code %d without running any tests", res.ExitCode)
		}
		return res.ExitCode == 0 && res.Counts.Failed == 0, nil
	}

	tracker := progress.New(0)
	session := bisect.New(a.logger, workDir, probe)
	session.OnStep = func(text string) {
		tracker.Status("bisecting: " + text)
	}
	hash, err := session.Run(ctx.Context)
	tracker.Clear()
	if err != nil {
		return err
	}

	fmt.Printf("First bad commit: %s\n", hash)
	if subject := session.Subject(hash); subject != "" {
		fmt.Printf("  %s\n", subject)
	}
	return nil
}

// rebuild regenerates the test binary for the current checkout so each
// bisect step probes the commit it actually has checked out.
func (a *App) rebuild(ctx context.Context) error {
	if len(a.cfg.BuildCmd) == 0 {
		return fmt.Errorf("no build command configured, set build_cmd in ~/%s", config.DefaultFile)
	}
	a.logger.Info().Strs("cmd", a.cfg.BuildCmd).Msg("Rebuilding test binary")
	cmd := exec.CommandContext(ctx, a.cfg.BuildCmd[0], a.cfg.BuildCmd[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("build failed: %w\n%s", err, out)
	}
	return nil
}
