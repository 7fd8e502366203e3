// Package pollute locates the earlier test whose side effects make a
// later test fail, by binary-searching over the tests that precede it
// in declaration order.
package pollute

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// TestID identifies one test within its suite.
type TestID struct {
	Suite string
	Name  string
}

func (id TestID) String() string {
	return id.Suite + "/" + id.Name
}

// Probe runs the given prior tests followed by target, in that order,
// in a fresh process, and reports whether target passed. An error
// means the run itself could not happen.
type Probe func(ctx context.Context, prior []TestID, target TestID) (bool, error)

// ErrInconclusive is returned when the failure does not reproduce
// deterministically enough for the search to converge.
var ErrInconclusive = fmt.Errorf("pollution search was inconclusive: the failure is not deterministic under subsetting")

// Finder performs the search.
type Finder struct {
	logger zerolog.Logger
	probe  Probe
}

func New(logger zerolog.Logger, probe Probe) *Finder {
	return &Finder{logger: logger, probe: probe}
}

// Resolve finds the single test whose name contains substr in the
// ordered collection. A miss lists near matches; multiple hits are
// rejected as ambiguous.
func Resolve(ordered []TestID, substr string) (int, error) {
	idx := -1
	var hits []string
	for i, id := range ordered {
		if strings.Contains(id.Name, substr) {
			hits = append(hits, id.Name)
			idx = i
		}
	}
	switch len(hits) {
	case 0:
		if near := nearMatches(ordered, substr); len(near) > 0 {
			return -1, fmt.Errorf("no test matching %q, did you mean: %s", substr, strings.Join(near, ", "))
		}
		return -1, fmt.Errorf("no test matching %q", substr)
	case 1:
		return idx, nil
	default:
		return -1, fmt.Errorf("%q is ambiguous, matches: %s", substr, strings.Join(hits, ", "))
	}
}

// nearMatches loosens the lookup to a short prefix of substr so a typo
// still produces useful suggestions.
func nearMatches(ordered []TestID, substr string) []string {
	prefix := substr
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	var near []string
	for _, id := range ordered {
		if strings.Contains(id.Name, prefix) {
			near = append(near, id.Name)
		}
	}
	return near
}

// Find returns the test that pollutes target. ordered is the full
// declaration-order collection containing target.
func (f *Finder) Find(ctx context.Context, ordered []TestID, targetIdx int) (TestID, error) {
	if targetIdx < 0 || targetIdx >= len(ordered) {
		return TestID{}, fmt.Errorf("target index %d out of range", targetIdx)
	}
	target := ordered[targetIdx]
	priors := ordered[:targetIdx]
	if len(priors) == 0 {
		return TestID{}, fmt.Errorf("%s is the first test, nothing can pollute it", target.Name)
	}

	// The premise is state leakage: the target must pass in
	// isolation and fail after the full set of priors.
	alone, err := f.probe(ctx, nil, target)
	if err != nil {
		return TestID{}, err
	}
	if !alone {
		return TestID{}, fmt.Errorf("%s fails on its own, not a pollution victim", target.Name)
	}

	withAll, err := f.probe(ctx, priors, target)
	if err != nil {
		return TestID{}, err
	}
	if withAll {
		return TestID{}, ErrInconclusive
	}

	candidates := priors
	for len(candidates) > 1 {
		half := candidates[:len(candidates)/2]
		f.logger.Debug().
			Int("candidates", len(candidates)).
			Int("trying", len(half)).
			Msg("Pollution search step")

		pass, err := f.probe(ctx, half, target)
		if err != nil {
			return TestID{}, err
		}
		if !pass {
			candidates = half
		} else {
			candidates = candidates[len(candidates)/2:]
		}
	}

	// Confirm the survivor alone reproduces the failure. The second
	// half is kept on faith during the search, so a flaky or
	// multi-test interaction lands here.
	pass, err := f.probe(ctx, candidates[:1], target)
	if err != nil {
		return TestID{}, err
	}
	if pass {
		return TestID{}, ErrInconclusive
	}
	return candidates[0], nil
}
