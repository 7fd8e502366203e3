// Package results incrementally parses the output stream of a test
// binary into structured outcomes and live progress.
//
// Three result channels exist in the wild. Explicit "Result:" markers
// (emitted under -E) are authoritative. Without them, failure is
// detected heuristically by scanning each test's output for
// failure-indicating substrings; this is best-effort and can
// misclassify a test whose legitimate output mentions one of the
// indicator words. A legacy "Test: <name> ... ok" form is used only if
// neither of the others ever appears in a run.
package results

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Counts summarizes a run.
type Counts struct {
	Passed  int
	Failed  int
	Skipped int
}

// Outcome is the final result of one test, immutable once finalized.
type Outcome struct {
	Suite       string
	Name        string
	Passed      bool
	Skipped     bool
	Diagnostics []string
}

// failureIndicators marks a test as failed when any appears in its
// output. Best-effort: kept in sync with the test binary's assertion
// messages, but a test legitimately printing "Error" will be
// misclassified.
var failureIndicators = []string{"Expected", "failed", "ASSERT", "Error", "Failure"}

type state int

const (
	stateIdle state = iota
	stateInSuite
	stateInTest
)

type eventKind int

const (
	eventNone eventKind = iota
	eventSuiteStart
	eventTestStart
	eventResult
	eventLegacyResult
	eventSummary
	eventDiagnostic
)

type event struct {
	kind     eventKind
	suite    string
	count    int    // suite test count, or summary run count
	failures int    // summary failure count
	name     string // test name
	status   string // PASS, FAIL or SKIP
	line     string // diagnostic text
}

var (
	reSuite   = regexp.MustCompile(`^Running (\d+) (\w+) tests`)
	reTest    = regexp.MustCompile(`^Test: (\w+): (\S+)`)
	reResult  = regexp.MustCompile(`^Result:\s*(PASS|FAIL|SKIP):?\s+(\S+)`)
	reSummary = regexp.MustCompile(`^Tests run: (\d+),.*failures: (\d+)`)
	reLegacy  = regexp.MustCompile(`^Test:\s*(\S+)`)
)

// classifyLine is the pure transition function of the parser state
// machine: given the current state and one complete line, it returns
// the next state and the event the line represents. It performs no
// I/O and holds no state of its own.
func classifyLine(st state, line string) (state, event) {
	if m := reSuite.FindStringSubmatch(line); m != nil {
		count, _ := strconv.Atoi(m[1])
		return stateInSuite, event{kind: eventSuiteStart, suite: m[2], count: count}
	}

	if m := reResult.FindStringSubmatch(line); m != nil {
		return st, event{kind: eventResult, status: m[1], name: m[2]}
	}

	if m := reTest.FindStringSubmatch(line); m != nil {
		return stateInTest, event{kind: eventTestStart, name: m[1]}
	}

	if m := reSummary.FindStringSubmatch(line); m != nil {
		run, _ := strconv.Atoi(m[1])
		failures, _ := strconv.Atoi(m[2])
		return stateInSuite, event{kind: eventSummary, count: run, failures: failures}
	}

	// Legacy per-test result: "Test: <name> ... ok|FAILED|SKIPPED"
	if m := reLegacy.FindStringSubmatch(line); m != nil {
		lower := strings.ToLower(line)
		var status string
		switch {
		case strings.Contains(lower, "... ok"):
			status = "PASS"
		case strings.Contains(lower, "... failed"):
			status = "FAIL"
		case strings.Contains(lower, "... skipped"):
			status = "SKIP"
		}
		if status != "" {
			return st, event{kind: eventLegacyResult, status: status, name: m[1]}
		}
	}

	if st == stateInTest && strings.TrimSpace(line) != "" {
		return st, event{kind: eventDiagnostic, line: line}
	}
	return st, event{kind: eventNone}
}

type openTest struct {
	suite          string
	name           string
	diags          []string
	explicitStatus string
}

const tailLines = 8

// Parser consumes the interleaved stdout/stderr stream of one worker
// process chunk by chunk. It implements io.Writer; a trailing partial
// line is buffered until the next chunk completes it. Each worker owns
// its own Parser; only the callbacks may touch shared state.
type Parser struct {
	// Total is the predicted number of test runs. If zero, the first
	// "Running N ... tests" banner supplies it.
	Total int

	// OnTestStart fires for every test-started marker. In parallel
	// mode this is the thread-safe shared progress incrementer.
	OnTestStart func(suite, name string)

	// OnFailure fires as soon as a test is finalized as failed, so
	// failures surface during long runs rather than at the end.
	OnFailure func(Outcome)

	st      state
	partial []byte
	suite   string

	started         int
	sawExplicit     bool
	sawSummary      bool
	summaryRun      int
	summaryFailures int

	cur       *openTest
	finalized []Outcome // outcomes from test-started markers
	explicit  []Outcome // Result: markers with no matching open test
	legacy    []Outcome

	tail []string
}

func New(total int) *Parser {
	return &Parser{Total: total}
}

// Write feeds one chunk of process output into the parser.
func (p *Parser) Write(data []byte) (int, error) {
	p.partial = append(p.partial, data...)
	for {
		idx := bytes.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(p.partial[:idx]), "\r")
		p.partial = p.partial[idx+1:]
		p.handleLine(line)
	}
	return len(data), nil
}

// Flush completes the trailing partial line and finalizes any open
// test. Call once after the process exits.
func (p *Parser) Flush() {
	if len(p.partial) > 0 {
		line := strings.TrimRight(string(p.partial), "\r")
		p.partial = nil
		p.handleLine(line)
	}
	p.finalize()
}

func (p *Parser) handleLine(line string) {
	if strings.TrimSpace(line) != "" {
		p.tail = append(p.tail, line)
		if len(p.tail) > tailLines {
			p.tail = p.tail[1:]
		}
	}

	st, ev := classifyLine(p.st, line)
	p.st = st

	switch ev.kind {
	case eventSuiteStart:
		p.finalize()
		p.suite = ev.suite
		if p.Total == 0 {
			p.Total = ev.count
		}

	case eventTestStart:
		p.finalize()
		p.cur = &openTest{suite: p.suite, name: ev.name}
		p.started++
		if p.OnTestStart != nil {
			p.OnTestStart(p.suite, ev.name)
		}

	case eventResult:
		p.sawExplicit = true
		if p.cur != nil && p.cur.name == ev.name {
			p.cur.explicitStatus = ev.status
			return
		}
		out := Outcome{
			Suite:   p.suite,
			Name:    ev.name,
			Passed:  ev.status == "PASS",
			Skipped: ev.status == "SKIP",
		}
		p.explicit = append(p.explicit, out)
		if !out.Passed && !out.Skipped && p.OnFailure != nil {
			p.OnFailure(out)
		}

	case eventLegacyResult:
		p.legacy = append(p.legacy, Outcome{
			Suite:   p.suite,
			Name:    ev.name,
			Passed:  ev.status == "PASS",
			Skipped: ev.status == "SKIP",
		})

	case eventSummary:
		p.finalize()
		p.sawSummary = true
		p.summaryRun += ev.count
		p.summaryFailures += ev.failures

	case eventDiagnostic:
		if p.cur != nil {
			p.cur.diags = append(p.cur.diags, ev.line)
		}
	}
}

// finalize closes the currently open test, deciding pass/fail from the
// explicit marker when one was seen, otherwise from the failure
// heuristic over its collected output.
func (p *Parser) finalize() {
	cur := p.cur
	if cur == nil {
		return
	}
	p.cur = nil

	out := Outcome{Suite: cur.suite, Name: cur.name, Diagnostics: cur.diags}
	if cur.explicitStatus != "" {
		out.Passed = cur.explicitStatus == "PASS"
		out.Skipped = cur.explicitStatus == "SKIP"
	} else {
		out.Passed = !heuristicFailed(cur.diags)
	}

	p.finalized = append(p.finalized, out)
	if !out.Passed && !out.Skipped && p.OnFailure != nil {
		p.OnFailure(out)
	}
}

func heuristicFailed(diags []string) bool {
	for _, line := range diags {
		for _, indicator := range failureIndicators {
			if strings.Contains(line, indicator) {
				return true
			}
		}
	}
	return false
}

// Outcomes returns the per-test results. Explicit markers win over
// heuristics; the legacy format is consulted only if neither explicit
// markers nor test-started markers appeared in the whole run.
func (p *Parser) Outcomes() []Outcome {
	if p.started > 0 || p.sawExplicit {
		return append(append([]Outcome(nil), p.finalized...), p.explicit...)
	}
	return append([]Outcome(nil), p.legacy...)
}

// Failures returns the failed outcomes in stream order.
func (p *Parser) Failures() []Outcome {
	var failed []Outcome
	for _, out := range p.Outcomes() {
		if !out.Passed && !out.Skipped {
			failed = append(failed, out)
		}
	}
	return failed
}

// Counts tallies the outcomes. ok is false when the run produced no
// recognizable results at all, which callers report as an
// infrastructure error rather than a test failure.
func (p *Parser) Counts() (c Counts, ok bool) {
	outcomes := p.Outcomes()
	if len(outcomes) == 0 && !p.sawSummary {
		return Counts{}, false
	}
	for _, out := range outcomes {
		switch {
		case out.Skipped:
			c.Skipped++
		case out.Passed:
			c.Passed++
		default:
			c.Failed++
		}
	}
	return c, true
}

// Run returns how many tests ran.
func (p *Parser) Run() int {
	return len(p.Outcomes())
}

// Started returns the number of test-started markers observed.
func (p *Parser) Started() int {
	return p.started
}

// SummaryFailures returns the failure count reported by the binary's
// own "Tests run" summary lines.
func (p *Parser) SummaryFailures() int {
	return p.summaryFailures
}

// Tail returns the last few non-empty output lines, used to surface a
// diagnostic when a process exits without running any tests.
func (p *Parser) Tail() []string {
	return append([]string(nil), p.tail...)
}
