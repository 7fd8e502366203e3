package cli

// This file contains the test command: spec resolution, run-count
// prediction, execution and the history record.

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/history"
	"github.com/ubrun/ubrun/inventory"
	"github.com/ubrun/ubrun/model"
	"github.com/ubrun/ubrun/runner"
	"github.com/ubrun/ubrun/testspec"
)

func (a *App) test(ctx *cli.Context) error {
	if bin := ctx.String("bin"); bin != "" {
		a.cfg.Binary = bin
	}
	bin := a.cfg.BinaryPath()
	if _, err := os.Stat(bin); err != nil {
		return fmt.Errorf("test binary %s not found, build the board first", bin)
	}

	// Collection order matters here: suite-less specs resolve to the
	// suite of the first matching test in linker-list order.
	reader := inventory.NewReader(a.logger)
	records, err := reader.TestOrder(bin)
	if err != nil {
		return err
	}

	specs := testspec.Parse(ctx.Args().Slice())
	specs, unmatched := testspec.ResolveSuites(specs, records)
	unmatched = append(unmatched, testspec.Validate(specs, records)...)
	if len(unmatched) > 0 {
		var names []string
		for _, spec := range unmatched {
			names = append(names, spec.String())
		}
		return fmt.Errorf("no tests found matching: %s", strings.Join(names, ", "))
	}

	opts := runner.Options{
		Workers: ctx.Int("workers"),
		Full:    ctx.Bool("full"),
		Verbose: ctx.Bool("test-verbose"),
		Manual:  ctx.Bool("manual"),
		Legacy:  ctx.Bool("legacy"),
		DryRun:  ctx.Bool("dry-run"),
	}

	predicted := a.predict(reader, bin, records, specs, opts.Full)
	if predicted == 0 {
		a.logger.Debug().Msg("No run-count prediction available, progress will be uncounted")
	}

	started := time.Now()
	res, err := runner.New(a.cfg, a.logger).Run(ctx.Context, specs, predicted, opts)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return nil
	}

	if res.NoResults {
		for _, line := range res.Tail {
			fmt.Println(line)
		}
		return fmt.Errorf("binary exited with code %d without running any tests", res.ExitCode)
	}

	if predicted > 0 && res.Run != predicted {
		a.logger.Warn().
			Int("predicted", predicted).
			Int("ran", res.Run).
			Msg("Run count differs from prediction")
	}

	fmt.Printf("Results: %d passed, %d failed, %d skipped in %s\n",
		res.Counts.Passed, res.Counts.Failed, res.Counts.Skipped,
		formatDuration(res.Duration))

	a.recordRun(specs, predicted, res, started, opts.Workers)

	if res.Counts.Failed > 0 {
		return fmt.Errorf("%d tests failed", res.Counts.Failed)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("test binary exited with code %d", res.ExitCode)
	}
	return nil
}

// predict estimates how many test runs the binary will perform, for
// the progress display. It needs the per-test flags from the binary's
// unit_test records; when those cannot be read the prediction is
// skipped rather than failing the run.
func (a *App) predict(reader *inventory.Reader, bin string, records []inventory.TestRecord, specs []testspec.Spec, full bool) int {
	suites := make(map[string]bool)
	all := false
	for _, spec := range specs {
		if spec.IsAll() || spec.Suite == "" {
			all = true
			break
		}
		suites[spec.Suite] = true
	}
	if all {
		for _, rec := range records {
			suites[rec.Suite] = true
		}
	}

	var flagged []inventory.TestRecord
	for suite := range suites {
		recs, err := reader.TestFlags(bin, suite)
		if err != nil {
			if errors.Is(err, inventory.ErrSectionNotFound) {
				a.logger.Debug().Msg("Binary has no unit_test section header, skipping prediction")
			} else {
				a.logger.Debug().Err(err).Str("suite", suite).Msg("Cannot read test flags, skipping prediction")
			}
			return 0
		}
		flagged = append(flagged, recs...)
	}
	return testspec.Predict(flagged, specs, full)
}

func (a *App) recordRun(specs []testspec.Spec, predicted int, res *runner.Result, started time.Time, workers int) {
	root, err := history.Root()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Not recording run history")
		return
	}
	id, err := history.NewID()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Not recording run history")
		return
	}

	workDir, _ := os.Getwd()
	var specStrs []string
	for _, spec := range specs {
		specStrs = append(specStrs, spec.String())
	}
	var failedNames []string
	for _, out := range res.Failed {
		failedNames = append(failedNames, out.Name)
	}

	run := model.Run{
		ID:          id,
		Timestamp:   started,
		Args:        os.Args,
		WorkDir:     workDir,
		ExitCode:    res.ExitCode,
		Duration:    res.Duration,
		Git:         a.gitInfo(),
		Specs:       specStrs,
		Workers:     workers,
		Predicted:   predicted,
		Ran:         res.Run,
		Passed:      res.Counts.Passed,
		Failed:      res.Counts.Failed,
		Skipped:     res.Counts.Skipped,
		FailedTests: failedNames,
	}

	if _, err := history.Save(root, run, res.Output); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record run history")
	}
}

// formatDuration humanizes a run duration: sub-minute runs show
// seconds only.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	mins := int(d.Minutes())
	return fmt.Sprintf("%dm %.1fs", mins, d.Seconds()-float64(mins)*60)
}
