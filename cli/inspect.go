package cli

// This file contains the suites and tests listing commands.

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/inventory"
)

func (a *App) suites(ctx *cli.Context) error {
	bin := a.cfg.BinaryPath()
	if _, err := os.Stat(bin); err != nil {
		return fmt.Errorf("test binary %s not found, build the board first", bin)
	}

	reader := inventory.NewReader(a.logger)
	suites, err := reader.ListSuites(bin)
	if err != nil {
		return err
	}

	for _, suite := range suites {
		tests, err := reader.ListTests(bin, suite)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %d tests\n", suite, len(tests))
	}
	return nil
}

func (a *App) tests(ctx *cli.Context) error {
	bin := a.cfg.BinaryPath()
	if _, err := os.Stat(bin); err != nil {
		return fmt.Errorf("test binary %s not found, build the board first", bin)
	}

	suite := ctx.Args().First()
	reader := inventory.NewReader(a.logger)
	recs, err := reader.ListTests(bin, suite)
	if err != nil {
		return err
	}
	if suite != "" && len(recs) == 0 {
		return fmt.Errorf("no suite named %q in %s", suite, bin)
	}

	for _, rec := range recs {
		fmt.Printf("%s %s\n", rec.Suite, rec.Name)
	}
	return nil
}
