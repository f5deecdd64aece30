// pkg/drift/detect_test.go

package drift

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_IdenticalStatesProduceNoConflict(t *testing.T) {
	source := testutil.State("service", "web", entity.Fields{"port": 80, "host": "a"})
	target := testutil.State("service", "web", entity.Fields{"port": 80.0, "host": "a"})

	assert.Nil(t, Detect(source, target, nil, entity.Schema{}))
}

func TestDetect_FieldLevelDrift(t *testing.T) {
	source := testutil.State("service", "web", entity.Fields{"port": 8080, "retries": 3, "extra": "x"})
	target := testutil.State("service", "web", entity.Fields{"port": 80, "retries": 3, "legacy": "y"})

	c := Detect(source, target, nil, entity.Schema{})
	require.NotNil(t, c)
	assert.Equal(t, conflict.StatusPending, c.Status)
	assert.Equal(t, source.Ref, c.Ref)
	assert.NotEmpty(t, c.ID)

	byField := map[string]conflict.FieldDrift{}
	for _, fd := range c.DriftedFields {
		byField[fd.Field] = fd
	}
	require.Len(t, byField, 3)

	assert.Equal(t, TypeModified, Classify(byField["port"]))
	assert.Equal(t, TypeAdded, Classify(byField["extra"]))
	assert.Equal(t, TypeRemoved, Classify(byField["legacy"]))
	_, agreed := byField["retries"]
	assert.False(t, agreed, "agreed field must not appear as drift")
}

func TestDetect_BaselineAnnotation(t *testing.T) {
	baseline := testutil.State("service", "web", entity.Fields{"port": 80})
	source := testutil.State("service", "web", entity.Fields{"port": 8080, "added": 1})
	target := testutil.State("service", "web", entity.Fields{"port": 80})

	c := Detect(source, target, &baseline, entity.Schema{})
	require.NotNil(t, c)
	require.NotNil(t, c.Baseline)

	byField := map[string]conflict.FieldDrift{}
	for _, fd := range c.DriftedFields {
		byField[fd.Field] = fd
	}
	assert.True(t, byField["port"].HasBaseline)
	assert.Equal(t, 80, byField["port"].BaselineValue)
	assert.False(t, byField["added"].HasBaseline)
}

func TestDetect_DoesNotAliasInputs(t *testing.T) {
	source := testutil.State("service", "web", entity.Fields{"tags": []any{"a"}})
	target := testutil.State("service", "web", entity.Fields{"tags": []any{"b"}})

	c := Detect(source, target, nil, entity.Schema{})
	require.NotNil(t, c)

	c.Source.Fields["tags"].([]any)[0] = "mutated"
	assert.Equal(t, "a", source.Fields["tags"].([]any)[0])
}

func TestDetect_SetSchemaSuppressesOrderOnlyDrift(t *testing.T) {
	schema := entity.Schema{SetFields: map[string]bool{"tags": true}}
	source := testutil.State("service", "web", entity.Fields{"tags": []any{"a", "b"}})
	target := testutil.State("service", "web", entity.Fields{"tags": []any{"b", "a"}})

	assert.Nil(t, Detect(source, target, nil, schema))
}

func TestDetect_Deterministic(t *testing.T) {
	source := testutil.State("service", "web", entity.Fields{"a": 1, "b": 2, "c": 3})
	target := testutil.State("service", "web", entity.Fields{"a": 9, "b": 8, "c": 7})

	first := Detect(source, target, nil, entity.Schema{})
	second := Detect(source, target, nil, entity.Schema{})
	require.NotNil(t, first)
	require.NotNil(t, second)

	var firstFields, secondFields []string
	for _, fd := range first.DriftedFields {
		firstFields = append(firstFields, fd.Field)
	}
	for _, fd := range second.DriftedFields {
		secondFields = append(secondFields, fd.Field)
	}
	assert.Equal(t, firstFields, secondFields)
}
