package jsonschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUnionsIndependentFields(t *testing.T) {
	first := Infer(map[string]any{"a": "x"})
	second := Infer(map[string]any{"b": float64(1)})

	merged := Merge(first, second)
	require.Equal(t, TypeObject, merged.Type)
	assert.Equal(t, TypeString, merged.Properties["a"].Type)
	assert.Equal(t, TypeInteger, merged.Properties["b"].Type)

	// Same result regardless of write order for independent fields.
	reversed := Merge(second, first)
	assert.Equal(t, TypeString, reversed.Properties["a"].Type)
	assert.Equal(t, TypeInteger, reversed.Properties["b"].Type)
}

func TestMergeLastWriteWinsOnTypeConflict(t *testing.T) {
	old := Infer(map[string]any{"v": "text"})
	updated := Infer(map[string]any{"v": float64(3)})

	merged := Merge(old, updated)
	assert.Equal(t, TypeInteger, merged.Properties["v"].Type)
}

func TestMergeRecursesIntoNestedObjects(t *testing.T) {
	old := Infer(map[string]any{"nested": map[string]any{"a": "x"}})
	updated := Infer(map[string]any{"nested": map[string]any{"b": true}})

	merged := Merge(old, updated)
	nested := merged.Properties["nested"]
	require.Equal(t, TypeObject, nested.Type)
	assert.Equal(t, TypeString, nested.Properties["a"].Type)
	assert.Equal(t, TypeBoolean, nested.Properties["b"].Type)
}

func TestMergeArrayItems(t *testing.T) {
	old := Infer(map[string]any{"list": []any{map[string]any{"a": "x"}}})
	updated := Infer(map[string]any{"list": []any{map[string]any{"b": float64(2)}}})

	merged := Merge(old, updated)
	items := merged.Properties["list"].Items
	require.NotNil(t, items)
	assert.Equal(t, TypeString, items.Properties["a"].Type)
	assert.Equal(t, TypeInteger, items.Properties["b"].Type)
}

func TestMergeDoesNotMutateArguments(t *testing.T) {
	old := Infer(map[string]any{"a": "x"})
	updated := Infer(map[string]any{"b": float64(1)})
	oldCopy := old.Clone()
	updatedCopy := updated.Clone()

	_ = Merge(old, updated)
	assert.True(t, Equal(old, oldCopy))
	assert.True(t, Equal(updated, updatedCopy))
}

func TestMergeWithNil(t *testing.T) {
	s := Infer(map[string]any{"a": "x"})
	assert.True(t, Equal(s, Merge(nil, s)))
	assert.True(t, Equal(s, Merge(s, nil)))
	assert.Nil(t, Merge(nil, nil))
}

func TestMergeKeepsTitle(t *testing.T) {
	old := InferTitled("entityTest", map[string]any{"a": "x"})
	updated := Infer(map[string]any{"b": float64(1)})
	merged := Merge(old, updated)
	assert.Equal(t, "entityTest", merged.Title)
}

func TestReconcileOverrideReplacesWholesale(t *testing.T) {
	old := InferTitled("c", map[string]any{"a": "x"})
	inferred := InferTitled("c", map[string]any{"b": float64(1)})

	got := Reconcile(ModeOverride, old, inferred)
	assert.Nil(t, got.Properties["a"])
	assert.Equal(t, TypeInteger, got.Properties["b"].Type)
}

func TestReconcileMergeAccumulates(t *testing.T) {
	old := InferTitled("c", map[string]any{"a": "x"})
	inferred := InferTitled("c", map[string]any{"b": float64(1)})

	got := Reconcile(ModeMerge, old, inferred)
	assert.Equal(t, TypeString, got.Properties["a"].Type)
	assert.Equal(t, TypeInteger, got.Properties["b"].Type)
}

func TestEqualIdempotence(t *testing.T) {
	doc := map[string]any{"id": "1", "nested": map[string]any{"x": 1.5}}
	assert.True(t, Equal(Infer(doc), Infer(doc)))
	assert.False(t, Equal(Infer(doc), Infer(map[string]any{"id": "1"})))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeMerge, ParseMode("merge"))
	assert.Equal(t, ModeOverride, ParseMode("override"))
	assert.Equal(t, ModeOverride, ParseMode(""))
	assert.Equal(t, ModeOverride, ParseMode("bogus"))
}
