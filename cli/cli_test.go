package cli

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23s", formatDuration(1230*time.Millisecond))
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1m 23.4s", formatDuration(83400*time.Millisecond))
	assert.Equal(t, "2m 0.0s", formatDuration(2*time.Minute))
}

func TestSpecsContain(t *testing.T) {
	specs := []string{"dm video*", "bloblist"}
	assert.True(t, specsContain(specs, "dm"))
	assert.True(t, specsContain(specs, "video"))
	assert.False(t, specsContain(specs, "spi"))
}

func TestChainBefore(t *testing.T) {
	var order []int
	first := func(ctx *cli.Context) error {
		order = append(order, 1)
		return nil
	}
	second := func(ctx *cli.Context) error {
		order = append(order, 2)
		return nil
	}
	require.NoError(t, chainBefore(first, nil, second)(nil))
	assert.Equal(t, []int{1, 2}, order)

	failing := func(ctx *cli.Context) error {
		return fmt.Errorf("boom")
	}
	called := false
	after := func(ctx *cli.Context) error {
		called = true
		return nil
	}
	require.Error(t, chainBefore(failing, after)(nil))
	assert.False(t, called)
}

func TestCommandsRegistered(t *testing.T) {
	app := New()
	var names []string
	for _, cmd := range app.cli.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t,
		[]string{"test", "suites", "tests", "bisect", "pollute", "list"}, names)
}

func TestSetVersion(t *testing.T) {
	app := New()
	app.SetVersion("1.2.3", "abcdef0123456789", "2026-08-26")
	assert.Contains(t, app.cli.Version, "1.2.3")
	assert.Contains(t, app.cli.Version, "abcdef01")
}
