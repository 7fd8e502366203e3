package pollute

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(names ...string) []TestID {
	out := make([]TestID, len(names))
	for i, n := range names {
		out[i] = TestID{Suite: "dm", Name: n}
	}
	return out
}

// polluterProbe models a deterministic polluter: the target fails
// exactly when the polluter ran before it. It counts probe calls.
func polluterProbe(polluter string, calls *int) Probe {
	return func(ctx context.Context, prior []TestID, target TestID) (bool, error) {
		*calls++
		for _, id := range prior {
			if id.Name == polluter {
				return false, nil
			}
		}
		return true, nil
	}
}

func TestResolve(t *testing.T) {
	ordered := ids("dm_test_alpha", "dm_test_beta", "dm_test_gamma")

	idx, err := Resolve(ordered, "beta")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = Resolve(ordered, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = Resolve(ordered, "gammma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean: dm_test_gamma")

	_, err = Resolve(ordered, "zzz")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestFindLocatesPolluter(t *testing.T) {
	ordered := ids("t0", "t1", "t2", "t3", "t4", "t5", "t6", "victim")

	for _, polluter := range []string{"t0", "t3", "t6"} {
		var calls int
		f := New(zerolog.Nop(), polluterProbe(polluter, &calls))

		got, err := f.Find(context.Background(), ordered, 7)
		require.NoError(t, err, "polluter %s", polluter)
		assert.Equal(t, polluter, got.Name)
	}
}

// With N priors the search needs at most 2 endpoint probes, ceil(log2
// N) halving probes, and 1 confirmation.
func TestFindProbeCountBound(t *testing.T) {
	var names []string
	for i := 0; i < 64; i++ {
		names = append(names, string(rune('a'+i%26))+string(rune('0'+i/26)))
	}
	names = append(names, "victim")
	ordered := ids(names...)

	var calls int
	f := New(zerolog.Nop(), polluterProbe(ordered[17].Name, &calls))

	got, err := f.Find(context.Background(), ordered, 64)
	require.NoError(t, err)
	assert.Equal(t, ordered[17].Name, got.Name)
	assert.LessOrEqual(t, calls, 2+6+1)
}

func TestFindFirstTestCannotBePolluted(t *testing.T) {
	f := New(zerolog.Nop(), nil)
	_, err := f.Find(context.Background(), ids("victim"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first test")
}

func TestFindRejectsSelfFailingTarget(t *testing.T) {
	probe := func(ctx context.Context, prior []TestID, target TestID) (bool, error) {
		return false, nil // fails even alone
	}
	f := New(zerolog.Nop(), probe)

	_, err := f.Find(context.Background(), ids("t0", "victim"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fails on its own")
}

func TestFindInconclusiveWhenFullSetPasses(t *testing.T) {
	probe := func(ctx context.Context, prior []TestID, target TestID) (bool, error) {
		return true, nil // never fails
	}
	f := New(zerolog.Nop(), probe)

	_, err := f.Find(context.Background(), ids("t0", "t1", "victim"), 2)
	assert.ErrorIs(t, err, ErrInconclusive)
}

// A failure needing two priors together is not reproducible by any
// single candidate; the confirmation probe catches it.
func TestFindInconclusiveOnPairwiseInteraction(t *testing.T) {
	probe := func(ctx context.Context, prior []TestID, target TestID) (bool, error) {
		hasT0, hasT3 := false, false
		for _, id := range prior {
			if id.Name == "t0" {
				hasT0 = true
			}
			if id.Name == "t3" {
				hasT3 = true
			}
		}
		return !(hasT0 && hasT3), nil
	}
	f := New(zerolog.Nop(), probe)

	_, err := f.Find(context.Background(), ids("t0", "t1", "t2", "t3", "victim"), 4)
	assert.ErrorIs(t, err, ErrInconclusive)
}
