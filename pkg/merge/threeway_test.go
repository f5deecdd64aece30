// pkg/merge/threeway_test.go

package merge

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/drift"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictFor(t *testing.T, baseline, source, target entity.Fields) *conflict.Conflict {
	t.Helper()
	b := testutil.State("service", "web", baseline)
	c := drift.Detect(
		testutil.State("service", "web", source),
		testutil.State("service", "web", target),
		&b, entity.Schema{})
	require.NotNil(t, c)
	return c
}

func TestThreeWay_CleanSplit(t *testing.T) {
	// Source edited port, target edited retries; both edits survive.
	c := conflictFor(t,
		entity.Fields{"port": 80, "retries": 3},
		entity.Fields{"port": 8080, "retries": 3},
		entity.Fields{"port": 80, "retries": 5})

	merged, err := ThreeWay{}.TryMerge(c)
	require.NoError(t, err)
	assert.Equal(t, entity.Fields{"port": 8080, "retries": 5}, merged)
}

func TestThreeWay_CleanSplitIsSymmetric(t *testing.T) {
	// Swapping which side made which edit yields the same merged result.
	c := conflictFor(t,
		entity.Fields{"port": 80, "retries": 3},
		entity.Fields{"port": 80, "retries": 5},
		entity.Fields{"port": 8080, "retries": 3})

	merged, err := ThreeWay{}.TryMerge(c)
	require.NoError(t, err)
	assert.Equal(t, entity.Fields{"port": 8080, "retries": 5}, merged)
}

func TestThreeWay_DoubleEditRefused(t *testing.T) {
	c := conflictFor(t,
		entity.Fields{"port": 80},
		entity.Fields{"port": 8080},
		entity.Fields{"port": 9090})

	_, err := ThreeWay{}.TryMerge(c)
	assert.ErrorIs(t, err, ErrMergeUnavailable)
}

func TestThreeWay_RefusesWithoutBaseline(t *testing.T) {
	c := drift.Detect(
		testutil.State("service", "web", entity.Fields{"port": 8080}),
		testutil.State("service", "web", entity.Fields{"port": 80}),
		nil, entity.Schema{})
	require.NotNil(t, c)

	_, err := ThreeWay{}.TryMerge(c)
	assert.ErrorIs(t, err, ErrMergeUnavailable)
}

func TestThreeWay_DeletionWins(t *testing.T) {
	// Source deleted the field, target left it at the baseline value.
	c := conflictFor(t,
		entity.Fields{"port": 80, "legacy": "x"},
		entity.Fields{"port": 80, "retries": 1},
		entity.Fields{"port": 80, "legacy": "x", "retries": 1})

	merged, err := ThreeWay{}.TryMerge(c)
	require.NoError(t, err)
	_, present := merged["legacy"]
	assert.False(t, present, "deleted field must stay deleted")
	assert.Equal(t, 80, merged["port"])
}

func TestThreeWay_AddedOnOneSide(t *testing.T) {
	c := conflictFor(t,
		entity.Fields{"port": 80},
		entity.Fields{"port": 80, "timeout": 30},
		entity.Fields{"port": 80})

	merged, err := ThreeWay{}.TryMerge(c)
	require.NoError(t, err)
	assert.Equal(t, 30, merged["timeout"])
}

func TestThreeWay_AddedDifferentlyOnBothSides(t *testing.T) {
	c := conflictFor(t,
		entity.Fields{"port": 80},
		entity.Fields{"port": 80, "timeout": 30},
		entity.Fields{"port": 80, "timeout": 60})

	_, err := ThreeWay{}.TryMerge(c)
	assert.ErrorIs(t, err, ErrMergeUnavailable)
}

func TestRegistry(t *testing.T) {
	s, err := Get("three-way")
	require.NoError(t, err)
	assert.Equal(t, "three-way", s.Name())

	_, err = Get("nope")
	assert.Error(t, err)

	assert.Contains(t, List(), "three-way")
}
