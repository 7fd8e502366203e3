// Package testspec turns user-supplied test selectors into (suite,
// pattern) specs, resolves bare patterns against the binary's test
// inventory and validates that every spec matches at least one test.
package testspec

import (
	"path"
	"strings"

	"github.com/ubrun/ubrun/inventory"
)

// AllSuites is the literal suite name meaning "run everything".
const AllSuites = "all"

// Spec selects tests to run. An empty Suite means "search all suites
// for Pattern"; an empty Pattern means "run the whole suite". Specs
// are value objects: once produced they are never mutated.
type Spec struct {
	Suite   string
	Pattern string
}

// IsAll reports whether this is the run-everything spec.
func (s Spec) IsAll() bool {
	return s.Suite == AllSuites && s.Pattern == ""
}

func (s Spec) String() string {
	if s.Pattern == "" {
		return s.Suite
	}
	if s.Suite == "" {
		return s.Pattern
	}
	return s.Suite + " " + s.Pattern
}

// hasGlob reports whether pattern contains shell-glob metacharacters.
func hasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// parseOne parses a single selector. Accepted forms:
//
//	dm                  whole suite
//	"dm video*"         suite plus pattern
//	dm.test_acpi        suite.test
//	ut_bootstd_bootflow pytest-style name
//	bloblist_test_blob  full test name: suite_test_name
//	test_acpi           search all suites for "acpi"
//	ext4l_unlink        partial name, search all suites
func parseOne(arg string) Spec {
	fields := strings.Fields(arg)
	suite := fields[0]
	pattern := ""
	if len(fields) > 1 {
		pattern = strings.Join(fields[1:], " ")
	}

	// Strip ut_ prefix from pytest-style names: ut_<suite>_<testname>
	if strings.HasPrefix(suite, "ut_") {
		suite = suite[3:]
		if pattern == "" {
			if idx := strings.Index(suite, "_"); idx >= 0 {
				return Spec{Suite: suite[:idx], Pattern: suite[idx+1:]}
			}
		}
		return Spec{Suite: suite, Pattern: pattern}
	}

	switch {
	case strings.Contains(suite, ".") && pattern == "":
		// suite.test form
		idx := strings.Index(suite, ".")
		return Spec{Suite: suite[:idx], Pattern: suite[idx+1:]}
	case strings.Contains(suite, "_test_"):
		// Full test name: suite_test_name
		idx := strings.Index(suite, "_test_")
		return Spec{Suite: suite[:idx], Pattern: suite[idx+len("_test_"):]}
	case strings.HasPrefix(suite, "test_"):
		// Test name only: search all suites
		return Spec{Pattern: suite[len("test_"):]}
	case strings.Contains(suite, "_") && pattern == "":
		// Partial test name, search all suites
		return Spec{Pattern: suite}
	}
	return Spec{Suite: suite, Pattern: pattern}
}

// Parse converts command-line selectors into specs. Multiple selectors
// have OR semantics: each is parsed independently.
//
//	nil or ["all"]          -> [{all}]
//	["dm"]                  -> [{dm}]
//	["dm", "video*"]        -> [{dm video*}]
//	["dm video*"]           -> [{dm video*}]
//	["log", "lib"]          -> [{log}, {lib}]
//	["bloblist_test_blob"]  -> [{bloblist blob}]
func Parse(args []string) []Spec {
	if len(args) == 0 || (len(args) == 1 && args[0] == AllSuites) {
		return []Spec{{Suite: AllSuites}}
	}

	if len(args) == 1 {
		return []Spec{parseOne(args[0])}
	}

	// Two args where the second is a glob: suite plus pattern
	if len(args) == 2 && hasGlob(args[1]) {
		return []Spec{{Suite: args[0], Pattern: args[1]}}
	}

	specs := make([]Spec, 0, len(args))
	for _, arg := range args {
		specs = append(specs, parseOne(arg))
	}
	return specs
}

// ResolveSuites fills in the suite for specs that only carry a
// pattern, by searching the inventory for the first test whose name
// ends with the pattern. Specs with no match are returned separately.
func ResolveSuites(specs []Spec, records []inventory.TestRecord) (resolved, unmatched []Spec) {
	for _, spec := range specs {
		if spec.Suite != "" {
			resolved = append(resolved, spec)
			continue
		}
		found := false
		for _, rec := range records {
			if strings.HasSuffix(rec.Name, spec.Pattern) {
				resolved = append(resolved, Spec{Suite: rec.Suite, Pattern: spec.Pattern})
				found = true
				break
			}
		}
		if !found {
			unmatched = append(unmatched, spec)
		}
	}
	return resolved, unmatched
}

// BareName strips the suite prefix off a full test name, so that
// "dm_test_video_base" in suite "dm" becomes "video_base".
func BareName(rec inventory.TestRecord) string {
	return strings.TrimPrefix(rec.Name, rec.Suite+"_test_")
}

// Matches reports whether a test record satisfies a spec. A glob
// pattern is matched against the bare test name; anything else is a
// suffix match against the full name.
func Matches(rec inventory.TestRecord, spec Spec) bool {
	if spec.IsAll() {
		return true
	}
	if rec.Suite != spec.Suite {
		return false
	}
	if spec.Pattern == "" {
		return true
	}
	if hasGlob(spec.Pattern) {
		ok, err := path.Match(spec.Pattern, BareName(rec))
		return err == nil && ok
	}
	return strings.HasSuffix(rec.Name, spec.Pattern)
}

// Validate confirms that every spec (except the literal "all") matches
// at least one inventory test. All failures are collected and returned
// together rather than one at a time.
func Validate(specs []Spec, records []inventory.TestRecord) []Spec {
	if len(specs) == 1 && specs[0].IsAll() {
		return nil
	}

	var unmatched []Spec
	for _, spec := range specs {
		found := false
		for _, rec := range records {
			if Matches(rec, spec) {
				found = true
				break
			}
		}
		if !found {
			unmatched = append(unmatched, spec)
		}
	}
	return unmatched
}
