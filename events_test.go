package ignis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Filter Construction Tests
// -----------------------------------------------------------------------------

func TestFiltered_Every_FiresOnDivisibleCounters(t *testing.T) {
	tests := []struct {
		every int
		want  []int // counters in 1..12 the filter accepts
	}{
		{2, []int{2, 4, 6, 8, 10, 12}},
		{3, []int{3, 6, 9, 12}},
		{5, []int{5, 10}},
		{12, []int{12}},
	}

	for _, tt := range tests {
		ev, err := IterationStarted.Every(tt.every)
		require.NoError(t, err)
		require.NotNil(t, ev.Filter())

		var got []int
		for counter := 1; counter <= 12; counter++ {
			if ev.Filter()(nil, counter) {
				got = append(got, counter)
			}
		}
		assert.Equal(t, tt.want, got, "every=%d", tt.every)
	}
}

func TestFiltered_EveryOne_ReturnsUnfilteredVariant(t *testing.T) {
	ev, err := IterationStarted.Every(1)

	require.NoError(t, err)
	assert.Equal(t, IterationStarted, ev.Kind())
	assert.Nil(t, ev.Filter(), "every=1 must be equivalent to the bare kind")
}

func TestFiltered_Once_FiresExactlyOnTarget(t *testing.T) {
	ev, err := EpochStarted.Once(4)
	require.NoError(t, err)

	for counter := 1; counter <= 10; counter++ {
		assert.Equal(t, counter == 4, ev.Filter()(nil, counter), "counter=%d", counter)
	}
}

func TestFiltered_CustomPredicate(t *testing.T) {
	ev, err := IterationStarted.When(func(e *Engine, counter int) bool {
		return counter == 1 || counter == 5
	})
	require.NoError(t, err)

	assert.True(t, ev.Filter()(nil, 1))
	assert.False(t, ev.Filter()(nil, 3))
	assert.True(t, ev.Filter()(nil, 5))
}

func TestFiltered_MutualExclusion(t *testing.T) {
	pred := func(e *Engine, counter int) bool { return true }

	tests := []struct {
		name string
		spec FilterSpec
	}{
		{"none set", FilterSpec{}},
		{"filter and every", FilterSpec{Filter: pred, Every: 2}},
		{"filter and once", FilterSpec{Filter: pred, Once: 2}},
		{"every and once", FilterSpec{Every: 2, Once: 2}},
		{"all three", FilterSpec{Filter: pred, Every: 2, Once: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IterationStarted.Filtered(tt.spec)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestFiltered_ExactlyOneSucceeds(t *testing.T) {
	_, err := IterationStarted.Filtered(FilterSpec{Every: 2})
	assert.NoError(t, err)

	_, err = IterationStarted.Filtered(FilterSpec{Once: 2})
	assert.NoError(t, err)

	_, err = IterationStarted.Filtered(FilterSpec{
		Filter: func(e *Engine, counter int) bool { return true },
	})
	assert.NoError(t, err)
}

func TestFiltered_NonPositiveValues(t *testing.T) {
	_, err := IterationStarted.Every(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = IterationStarted.Once(-3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFiltered_InvalidCallable(t *testing.T) {
	tests := []struct {
		name   string
		filter any
	}{
		{"not a function", "every third"},
		{"wrong arity", func(counter int) bool { return true }},
		{"wrong return", func(e *Engine, counter int) int { return counter }},
		{"nil typed filter", EventFilter(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IterationStarted.Filtered(FilterSpec{Filter: tt.filter})
			assert.ErrorIs(t, err, ErrInvalidCallable)
		})
	}
}

// -----------------------------------------------------------------------------
// Equality Tests
// -----------------------------------------------------------------------------

func TestFilteredEvent_Matches_IgnoresFilter(t *testing.T) {
	everySecond, err := IterationStarted.Every(2)
	require.NoError(t, err)
	onceFifth, err := IterationStarted.Once(5)
	require.NoError(t, err)

	ok, err := everySecond.Matches(onceFifth)
	require.NoError(t, err)
	assert.True(t, ok, "filtered variants of the same kind must compare equal")

	ok, err = everySecond.Matches(IterationStarted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = everySecond.Matches("iteration_started")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilteredEvent_Matches_DifferentKinds(t *testing.T) {
	everySecond, err := IterationStarted.Every(2)
	require.NoError(t, err)
	epochEverySecond, err := EpochStarted.Every(2)
	require.NoError(t, err)

	ok, err := everySecond.Matches(epochEverySecond)
	require.NoError(t, err)
	assert.False(t, ok, "different kinds never compare equal, regardless of filters")
}

func TestFilteredEvent_Matches_IncomparableType(t *testing.T) {
	everySecond, err := IterationStarted.Every(2)
	require.NoError(t, err)

	_, err = everySecond.Matches(42)
	assert.ErrorIs(t, err, ErrIncomparableType)

	_, err = everySecond.Matches(nil)
	assert.ErrorIs(t, err, ErrIncomparableType)
}

func TestFilteredEvent_SharesMapKeyWithBareKind(t *testing.T) {
	everySecond, err := IterationStarted.Every(2)
	require.NoError(t, err)
	onceFifth, err := IterationStarted.Once(5)
	require.NoError(t, err)

	// Registration tables key by kind, so all variants collapse to one key.
	table := map[EventKind]int{}
	table[IterationStarted.Kind()]++
	table[everySecond.Kind()]++
	table[onceFifth.Kind()]++

	assert.Len(t, table, 1)
	assert.Equal(t, 3, table[IterationStarted])
}

// -----------------------------------------------------------------------------
// EventGroup Tests
// -----------------------------------------------------------------------------

func TestEventGroup_ThenChainPreservesOrder(t *testing.T) {
	everyThird, err := IterationStarted.Every(3)
	require.NoError(t, err)

	g, err := Started.Then(Completed)
	require.NoError(t, err)
	g, err = g.Then(everyThird)
	require.NoError(t, err)

	require.Equal(t, 3, g.Len())
	assert.Equal(t, Started, g.At(0).Kind())
	assert.Equal(t, Completed, g.At(1).Kind())
	assert.Equal(t, IterationStarted, g.At(2).Kind())
	assert.NotNil(t, g.At(2).Filter())

	kinds := make([]EventKind, 0, g.Len())
	for _, fe := range g.Events() {
		kinds = append(kinds, fe.Kind())
	}
	assert.Equal(t, []EventKind{Started, Completed, IterationStarted}, kinds)
}

func TestEventGroup_PermitsDuplicates(t *testing.T) {
	g, err := Group(Started, Started, Started)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
}

func TestEventGroup_RejectsNonEvents(t *testing.T) {
	_, err := Group(Started, 42)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	g, err := Group(Started)
	require.NoError(t, err)
	_, err = g.Then("completed")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
