// Package runner executes the test binary, sequentially or as N
// partitioned worker processes, and aggregates parsed results.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ubrun/ubrun/config"
	"github.com/ubrun/ubrun/progress"
	"github.com/ubrun/ubrun/results"
	"github.com/ubrun/ubrun/testspec"
)

// hostSuites are the suites whose tests mount the ext2 fixture image.
var hostSuites = map[string]bool{
	"cmd_host": true,
	"host":     true,
	"host_dup": true,
}

// Options controls a single run.
type Options struct {
	// Workers is the process count. Values below 2 run a single
	// sequential process without partitioning.
	Workers int
	// Full also runs tests against the flat device tree.
	Full bool
	// Verbose passes raw binary output through to the terminal.
	Verbose bool
	// Manual includes tests normally excluded from automatic runs.
	Manual bool
	// Legacy drops the explicit result-marker flag for old binaries.
	Legacy bool
	// DryRun prints the command lines instead of executing them.
	DryRun bool
}

// Result aggregates all worker processes of one run.
type Result struct {
	ExitCode int
	Counts   results.Counts
	Run      int
	Failed   []results.Outcome
	// NoResults is set when the binary exited without producing any
	// recognizable test output; Tail then holds its last lines.
	NoResults bool
	Tail      []string
	Duration  time.Duration
	// Output is the raw combined output of all workers, in worker
	// order, kept for the run history.
	Output []byte
}

// startFunc launches the binary with args, streaming combined output
// into w, and returns the process exit code. Swapped out in tests.
type startFunc func(ctx context.Context, w io.Writer, bin string, args []string) (int, error)

// Runner builds command lines and orchestrates worker processes.
type Runner struct {
	cfg    config.Config
	logger zerolog.Logger
	out    io.Writer
	start  startFunc

	fixtureMu   sync.Mutex
	fixturesRun bool
}

func New(cfg config.Config, logger zerolog.Logger) *Runner {
	r := &Runner{cfg: cfg, logger: logger, out: os.Stdout}
	r.start = r.startProcess
	return r
}

// utCommand renders the command string handed to the binary's -c flag:
// one "ut" invocation per spec, joined with "; ". The partition
// selector is the empty string for sequential runs.
func utCommand(specs []testspec.Spec, opts Options, partition string) string {
	var cmds []string
	for _, spec := range specs {
		parts := []string{"ut"}
		if !opts.Legacy {
			parts = append(parts, "-E")
		}
		if opts.Manual {
			parts = append(parts, "-m")
		}
		if partition != "" {
			parts = append(parts, partition)
		}
		suite := spec.Suite
		if suite == "" {
			suite = testspec.AllSuites
		}
		parts = append(parts, suite)
		if spec.Pattern != "" {
			parts = append(parts, spec.Pattern)
		}
		cmds = append(cmds, strings.Join(parts, " "))
	}
	return strings.Join(cmds, "; ")
}

// BuildArgs returns the argument vector for one worker process.
// worker is the zero-based index; it is ignored unless Workers > 1.
// -F suppresses flat-tree tests, so it is dropped in full mode.
func BuildArgs(specs []testspec.Spec, opts Options, worker int) []string {
	args := []string{"-T"}
	if !opts.Full {
		args = append(args, "-F")
	}
	if opts.Verbose {
		args = append(args, "-v")
	}
	partition := ""
	if opts.Workers > 1 {
		partition = fmt.Sprintf("-P%d:%d", opts.Workers, worker)
	}
	return append(args, "-c", utCommand(specs, opts, partition))
}

// NeedsFixtures reports whether any spec can select a test that mounts
// the fixture image: the host suites themselves, the dm suite, any
// pattern naming a host test, and the catch-all specs.
func NeedsFixtures(specs []testspec.Spec) bool {
	for _, spec := range specs {
		switch {
		case spec.IsAll() || spec.Suite == "":
			return true
		case hostSuites[spec.Suite] || spec.Suite == "dm":
			return true
		case strings.Contains(spec.Pattern, "host"):
			return true
		}
	}
	return false
}

// EnsureFixtures prepares the host test artifacts, running the
// configured fixture command once per process unless the image is
// already on disk. A fixture failure aborts the run since the host
// tests would fail confusingly without it.
func (r *Runner) EnsureFixtures(ctx context.Context) error {
	r.fixtureMu.Lock()
	defer r.fixtureMu.Unlock()
	if r.fixturesRun {
		return nil
	}

	artifact := r.cfg.FixtureArtifact()
	if _, err := os.Stat(artifact); err == nil {
		r.logger.Debug().Str("artifact", artifact).Msg("Fixture image present, skipping setup")
		r.fixturesRun = true
		return nil
	}

	if len(r.cfg.FixtureCmd) == 0 {
		return fmt.Errorf("fixture image %s missing and no fixture command configured", artifact)
	}

	// On a fresh tree nothing has created the persistent-data dir yet.
	dataDir := r.cfg.PersistentDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("fixture setup failed: %w", err)
	}

	r.logger.Info().Strs("cmd", r.cfg.FixtureCmd).Msg("Preparing test fixtures")
	cmd := exec.CommandContext(ctx, r.cfg.FixtureCmd[0], r.cfg.FixtureCmd[1:]...)
	cmd.Dir = dataDir
	cmd.Env = r.Env()
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("fixture setup failed: %w\n%s", err, out)
	}
	r.fixturesRun = true
	return nil
}

// Env returns the process environment for a worker, pointing the
// binary at the shared persistent data directory.
func (r *Runner) Env() []string {
	return append(os.Environ(),
		"U_BOOT_PERSISTENT_DATA_DIR="+r.cfg.PersistentDataDir())
}

func (r *Runner) startProcess(ctx context.Context, w io.Writer, bin string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = r.Env()
	cmd.Stdout = w
	cmd.Stderr = w
	// Forward Ctrl-C as SIGINT so the sandbox binary can reset the
	// terminal before exiting; hard-kill if it lingers.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to execute %s: %w", bin, err)
}

// Run executes the given specs, predicted test runs feeding the
// progress display, and returns the merged result. With Workers > 1
// each worker gets its own partition slice and its own parser; the
// parsers never share state, only the tracker callbacks do.
func (r *Runner) Run(ctx context.Context, specs []testspec.Spec, predicted int, opts Options) (*Result, error) {
	bin := r.cfg.BinaryPath()

	workers := opts.Workers
	if workers < 2 {
		workers = 1
	}

	if opts.DryRun {
		for i := 0; i < workers; i++ {
			args := BuildArgs(specs, opts, i)
			fmt.Fprintln(r.out, shellescape.QuoteCommand(append([]string{bin}, args...)))
		}
		return &Result{}, nil
	}

	if NeedsFixtures(specs) {
		if err := r.EnsureFixtures(ctx); err != nil {
			return nil, err
		}
	}

	tracker := progress.New(predicted)
	began := time.Now()

	parsers := make([]*results.Parser, workers)
	captures := make([]*bytes.Buffer, workers)
	g, gctx := errgroup.WithContext(ctx)
	exitCodes := make([]int, workers)

	for i := 0; i < workers; i++ {
		parser := results.New(0)
		parser.OnTestStart = func(suite, name string) {
			tracker.Step(name)
		}
		parser.OnFailure = func(out results.Outcome) {
			tracker.Clear()
			fmt.Fprintf(r.out, "FAIL: %s\n", out.Name)
			for _, line := range out.Diagnostics {
				fmt.Fprintf(r.out, "  %s\n", line)
			}
		}
		parsers[i] = parser

		args := BuildArgs(specs, opts, i)
		r.logger.Debug().Str("binary", bin).Strs("args", args).Msg("Starting worker")

		captures[i] = &bytes.Buffer{}
		var w io.Writer = io.MultiWriter(parser, captures[i])
		if opts.Verbose {
			w = io.MultiWriter(r.out, parser, captures[i])
		}

		i := i
		g.Go(func() error {
			code, err := r.start(gctx, w, bin, args)
			if err != nil {
				return err
			}
			exitCodes[i] = code
			return nil
		})
	}

	err := g.Wait()
	tracker.Clear()
	for _, parser := range parsers {
		parser.Flush()
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Duration: time.Since(began)}
	anyResults := false
	for i, parser := range parsers {
		counts, ok := parser.Counts()
		if ok {
			anyResults = true
		}
		res.Counts.Passed += counts.Passed
		res.Counts.Failed += counts.Failed
		res.Counts.Skipped += counts.Skipped
		res.Run += parser.Run()
		res.Failed = append(res.Failed, parser.Failures()...)
		if exitCodes[i] != 0 && res.ExitCode == 0 {
			res.ExitCode = exitCodes[i]
		}
		if !ok && exitCodes[i] != 0 && len(res.Tail) == 0 {
			res.Tail = parser.Tail()
		}
		res.Output = append(res.Output, captures[i].Bytes()...)
	}
	if !anyResults {
		res.NoResults = true
	}

	sort.SliceStable(res.Failed, func(a, b int) bool {
		return res.Failed[a].Name < res.Failed[b].Name
	})
	return res, nil
}
