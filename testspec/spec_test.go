package testspec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ubrun/ubrun/inventory"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []Spec
	}{
		{
			name: "empty runs everything",
			in:   nil,
			want: []Spec{{Suite: "all"}},
		},
		{
			name: "literal all",
			in:   []string{"all"},
			want: []Spec{{Suite: "all"}},
		},
		{
			name: "bare suite",
			in:   []string{"dm"},
			want: []Spec{{Suite: "dm"}},
		},
		{
			name: "suite and glob pattern",
			in:   []string{"dm", "video*"},
			want: []Spec{{Suite: "dm", Pattern: "video*"}},
		},
		{
			name: "suite and pattern in one token",
			in:   []string{"dm video*"},
			want: []Spec{{Suite: "dm", Pattern: "video*"}},
		},
		{
			name: "multiple suites",
			in:   []string{"log", "lib"},
			want: []Spec{{Suite: "log"}, {Suite: "lib"}},
		},
		{
			name: "full test name",
			in:   []string{"bloblist_test_blob"},
			want: []Spec{{Suite: "bloblist", Pattern: "blob"}},
		},
		{
			name: "dotted form",
			in:   []string{"dm.test_acpi"},
			want: []Spec{{Suite: "dm", Pattern: "test_acpi"}},
		},
		{
			name: "pytest style name",
			in:   []string{"ut_bootstd_bootflow"},
			want: []Spec{{Suite: "bootstd", Pattern: "bootflow"}},
		},
		{
			name: "test_ prefix searches all suites",
			in:   []string{"test_acpi"},
			want: []Spec{{Pattern: "acpi"}},
		},
		{
			name: "partial name with underscore searches all suites",
			in:   []string{"ext4l_unlink"},
			want: []Spec{{Pattern: "ext4l_unlink"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

// Parsing the canonical string form of a spec yields the same spec.
func TestParseIdempotent(t *testing.T) {
	specs := []Spec{
		{Suite: "all"},
		{Suite: "dm"},
		{Suite: "dm", Pattern: "video*"},
	}
	for _, spec := range specs {
		got := Parse([]string{spec.String()})
		require.Equal(t, []Spec{spec}, got, "spec %q", spec.String())
	}
}

var testRecords = []inventory.TestRecord{
	{Suite: "bloblist", Name: "bloblist_test_blob"},
	{Suite: "bloblist", Name: "bloblist_test_grow"},
	{Suite: "dm", Name: "dm_test_acpi"},
	{Suite: "dm", Name: "dm_test_video_base"},
	{Suite: "dm", Name: "dm_test_video_norm"},
}

func TestResolveSuites(t *testing.T) {
	resolved, unmatched := ResolveSuites([]Spec{{Pattern: "acpi"}}, testRecords)
	require.Empty(t, unmatched)
	require.Equal(t, []Spec{{Suite: "dm", Pattern: "acpi"}}, resolved)

	// First inventory match wins.
	resolved, unmatched = ResolveSuites([]Spec{{Pattern: "blob"}}, testRecords)
	require.Empty(t, unmatched)
	require.Equal(t, []Spec{{Suite: "bloblist", Pattern: "blob"}}, resolved)

	// Already-resolved specs pass through untouched.
	resolved, unmatched = ResolveSuites([]Spec{{Suite: "dm"}}, testRecords)
	require.Empty(t, unmatched)
	require.Equal(t, []Spec{{Suite: "dm"}}, resolved)

	resolved, unmatched = ResolveSuites([]Spec{{Pattern: "nonexistent"}}, testRecords)
	require.Empty(t, resolved)
	require.Equal(t, []Spec{{Pattern: "nonexistent"}}, unmatched)
}

func TestValidate(t *testing.T) {
	// "all" never fails validation.
	require.Empty(t, Validate([]Spec{{Suite: "all"}}, nil))

	require.Empty(t, Validate([]Spec{{Suite: "dm"}}, testRecords))
	require.Empty(t, Validate([]Spec{{Suite: "dm", Pattern: "acpi"}}, testRecords))
	require.Empty(t, Validate([]Spec{{Suite: "dm", Pattern: "video*"}}, testRecords))

	// Failures are collected together, not reported one at a time.
	unmatched := Validate([]Spec{
		{Suite: "nosuite"},
		{Suite: "dm", Pattern: "nomatch"},
		{Suite: "dm", Pattern: "acpi"},
	}, testRecords)
	require.Equal(t, []Spec{
		{Suite: "nosuite"},
		{Suite: "dm", Pattern: "nomatch"},
	}, unmatched)
}

func TestMatches(t *testing.T) {
	rec := inventory.TestRecord{Suite: "dm", Name: "dm_test_video_base"}

	require.True(t, Matches(rec, Spec{Suite: "all"}))
	require.True(t, Matches(rec, Spec{Suite: "dm"}))
	require.True(t, Matches(rec, Spec{Suite: "dm", Pattern: "video_base"}))
	require.True(t, Matches(rec, Spec{Suite: "dm", Pattern: "video*"}))
	require.False(t, Matches(rec, Spec{Suite: "dm", Pattern: "acpi"}))
	require.False(t, Matches(rec, Spec{Suite: "bloblist", Pattern: "video_base"}))
}

func TestBareName(t *testing.T) {
	require.Equal(t, "video_base",
		BareName(inventory.TestRecord{Suite: "dm", Name: "dm_test_video_base"}))
	require.Equal(t, "test_acpi",
		BareName(inventory.TestRecord{Suite: "dm", Name: "test_acpi"}))
}
