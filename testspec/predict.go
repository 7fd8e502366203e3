package testspec

import (
	"path"
	"strings"

	"github.com/ubrun/ubrun/inventory"
)

// Predict estimates how many times the selected tests will run under
// the given tree mode. The estimate is advisory: it feeds the progress
// display and sanity checks, and a differing live count is not an
// error.
//
// Per test: a FLAT_TREE test runs only when flat-tree mode is enabled.
// Every other test runs once on the live tree. A DM test without
// LIVE_TREE runs an additional time on the flat tree, except video
// tests: repeating video re-initialization on the flat tree is unsafe,
// so only the base video test gets the extra run.
func Predict(records []inventory.TestRecord, specs []Spec, flatTree bool) int {
	count := 0
	for _, rec := range records {
		if !predictMatch(rec, specs) {
			continue
		}

		if rec.Flags&inventory.FlagFlatTree != 0 {
			if flatTree {
				count++
			}
			continue
		}

		count++

		if flatTree && rec.Flags&inventory.FlagDM != 0 && rec.Flags&inventory.FlagLiveTree == 0 {
			if !strings.Contains(rec.Name, "video") || strings.Contains(rec.Name, "video_base") {
				count++
			}
		}
	}
	return count
}

// predictMatch applies spec selection the way the binary itself does
// when filtering: patterns are shell globs against the bare test name.
func predictMatch(rec inventory.TestRecord, specs []Spec) bool {
	for _, spec := range specs {
		if spec.IsAll() {
			return true
		}
		if rec.Suite != spec.Suite {
			continue
		}
		if spec.Pattern == "" {
			return true
		}
		if ok, err := path.Match(spec.Pattern, BareName(rec)); err == nil && ok {
			return true
		}
	}
	return false
}
