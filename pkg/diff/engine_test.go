package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/models"
)

func mustDoc(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.FromJSON([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestCompare_IdenticalDocuments(t *testing.T) {
	engine := NewEngine()
	doc := mustDoc(t, `{"lessons":[{"title":"One"}],"title":"Course"}`)

	result := engine.Compare(doc, doc)

	assert.False(t, result.HasChanges())
	assert.Empty(t, result.Changes)
	assert.Zero(t, result.AdditionsCount)
	assert.Zero(t, result.ModificationsCount)
	assert.Zero(t, result.DeletionsCount)
	assert.Zero(t, result.WordDelta)
}

func TestCompare_TitleModified(t *testing.T) {
	engine := NewEngine()
	v1 := mustDoc(t, `{"title":"A"}`)
	v2 := mustDoc(t, `{"title":"B"}`)

	result := engine.Compare(v1, v2)

	require.Len(t, result.Changes, 1)
	change := result.Changes[0]
	assert.Equal(t, "title", change.Path)
	assert.Equal(t, models.DiffOpModify, change.Op)
	require.NotNil(t, change.Before)
	require.NotNil(t, change.After)
	assert.Equal(t, "A", change.Before.AsString())
	assert.Equal(t, "B", change.After.AsString())
	assert.Equal(t, 1, result.ModificationsCount)
}

func TestCompare_Operations(t *testing.T) {
	tests := []struct {
		name          string
		source        string
		target        string
		expectedPaths []string
		expectedOps   []models.DiffOperation
	}{
		{
			name:          "added key",
			source:        `{"title":"A"}`,
			target:        `{"body":"text","title":"A"}`,
			expectedPaths: []string{"body"},
			expectedOps:   []models.DiffOperation{models.DiffOpAdd},
		},
		{
			name:          "deleted key",
			source:        `{"body":"text","title":"A"}`,
			target:        `{"title":"A"}`,
			expectedPaths: []string{"body"},
			expectedOps:   []models.DiffOperation{models.DiffOpDelete},
		},
		{
			name:          "nested modify",
			source:        `{"meta":{"author":"x"},"title":"A"}`,
			target:        `{"meta":{"author":"y"},"title":"A"}`,
			expectedPaths: []string{"meta.author"},
			expectedOps:   []models.DiffOperation{models.DiffOpModify},
		},
		{
			name:          "array element appended",
			source:        `{"tags":["a"]}`,
			target:        `{"tags":["a","b"]}`,
			expectedPaths: []string{"tags[1]"},
			expectedOps:   []models.DiffOperation{models.DiffOpAdd},
		},
		{
			name:          "array element removed",
			source:        `{"tags":["a","b"]}`,
			target:        `{"tags":["a"]}`,
			expectedPaths: []string{"tags[1]"},
			expectedOps:   []models.DiffOperation{models.DiffOpDelete},
		},
		{
			name:          "array element changed",
			source:        `{"tags":["a","b"]}`,
			target:        `{"tags":["a","c"]}`,
			expectedPaths: []string{"tags[1]"},
			expectedOps:   []models.DiffOperation{models.DiffOpModify},
		},
		{
			name:          "kind change is single modify",
			source:        `{"count":1}`,
			target:        `{"count":"one"}`,
			expectedPaths: []string{"count"},
			expectedOps:   []models.DiffOperation{models.DiffOpModify},
		},
		{
			name:          "subtree replacement is single modify at divergence point",
			source:        `{"meta":{"a":1}}`,
			target:        `{"meta":[1,2]}`,
			expectedPaths: []string{"meta"},
			expectedOps:   []models.DiffOperation{models.DiffOpModify},
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Compare(mustDoc(t, tt.source), mustDoc(t, tt.target))

			require.Len(t, result.Changes, len(tt.expectedPaths))
			for i, change := range result.Changes {
				assert.Equal(t, tt.expectedPaths[i], change.Path)
				assert.Equal(t, tt.expectedOps[i], change.Op)
			}
		})
	}
}

func TestCompare_OrderIsDeterministic(t *testing.T) {
	engine := NewEngine()
	source := mustDoc(t, `{"a":1,"m":{"x":1,"y":2},"z":3}`)
	target := mustDoc(t, `{"a":2,"m":{"x":9,"y":8},"z":4}`)

	first := engine.Compare(source, target)
	for i := 0; i < 10; i++ {
		again := engine.Compare(source, target)
		require.Equal(t, first.Changes, again.Changes)
	}

	paths := make([]string, len(first.Changes))
	for i, c := range first.Changes {
		paths[i] = c.Path
	}
	assert.Equal(t, []string{"a", "m.x", "m.y", "z"}, paths)
}

func TestCompare_AggregateCounts(t *testing.T) {
	engine := NewEngine()
	source := mustDoc(t, `{"dropped":"gone","kept":"same","title":"A"}`)
	target := mustDoc(t, `{"added":"new","kept":"same","title":"B"}`)

	result := engine.Compare(source, target)

	assert.Equal(t, 1, result.AdditionsCount)
	assert.Equal(t, 1, result.ModificationsCount)
	assert.Equal(t, 1, result.DeletionsCount)
	assert.Len(t, result.Changes, 3)
}

func TestCompare_WordDelta(t *testing.T) {
	engine := NewEngine()
	source := mustDoc(t, `{"body":"one two three"}`)
	target := mustDoc(t, `{"body":"one two three four five"}`)

	result := engine.Compare(source, target)
	assert.Equal(t, 2, result.WordDelta)

	reverse := engine.Compare(target, source)
	assert.Equal(t, -2, reverse.WordDelta)
}

func TestCompare_SnapshotsAreDetached(t *testing.T) {
	engine := NewEngine()
	source := mustDoc(t, `{"title":"A"}`)
	target := mustDoc(t, `{"title":"B"}`)

	result := engine.Compare(source, target)
	require.NoError(t, target.SetPath("title", document.String("mutated")))

	assert.Equal(t, "B", result.Changes[0].After.AsString())
}
