package cli

// This file contains the pollute command, which finds the earlier test
// whose state leakage makes a later test fail.

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/inventory"
	"github.com/ubrun/ubrun/pollute"
	"github.com/ubrun/ubrun/runner"
	"github.com/ubrun/ubrun/testspec"
)

func (a *App) pollute(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("pollute needs exactly one target test name")
	}
	bin := a.cfg.BinaryPath()
	if _, err := os.Stat(bin); err != nil {
		return fmt.Errorf("test binary %s not found, build the board first", bin)
	}

	// Declaration order is execution order, so the candidates are
	// exactly the tests that precede the target in the linker list.
	reader := inventory.NewReader(a.logger)
	recs, err := reader.TestOrder(bin)
	if err != nil {
		return err
	}
	ordered := make([]pollute.TestID, len(recs))
	for i, rec := range recs {
		ordered[i] = pollute.TestID{Suite: rec.Suite, Name: rec.Name}
	}

	targetIdx, err := pollute.Resolve(ordered, ctx.Args().First())
	if err != nil {
		return err
	}
	a.logger.Info().
		Str("target", ordered[targetIdx].Name).
		Int("priors", targetIdx).
		Msg("Searching for polluting test")

	probe := func(pctx context.Context, prior []pollute.TestID, target pollute.TestID) (bool, error) {
		specs := make([]testspec.Spec, 0, len(prior)+1)
		for _, id := range append(append([]pollute.TestID(nil), prior...), target) {
			specs = append(specs, testspec.Spec{Suite: id.Suite, Pattern: id.Name})
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

	polluter, err := pollute.New(a.logger, probe).Find(ctx.Context, ordered, targetIdx)
	if err != nil {
		return err
	}

	fmt.Printf("Polluting test: %s (suite %s)\n", polluter.Name, polluter.Suite)
	fmt.Printf("Reproduce with: ubrun test %s %s\n",
		testspec.Spec{Suite: polluter.Suite, Pattern: polluter.Name},
		testspec.Spec{Suite: ordered[targetIdx].Suite, Pattern: ordered[targetIdx].Name})
	return nil
}
