package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSON_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "scalars",
			input: `{"bool":true,"null":null,"number":42.5,"string":"hello"}`,
		},
		{
			name:  "nested lesson",
			input: `{"lessons":[{"body":"intro text","title":"Welcome"}],"title":"Course"}`,
		},
		{
			name:  "deep nesting",
			input: `{"a":{"b":{"c":[1,2,[3,{"d":"x"}]]}}}`,
		},
		{
			name:  "empty containers",
			input: `{"arr":[],"obj":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromJSON([]byte(tt.input))
			require.NoError(t, err)

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}
}

func TestMarshalJSON_SortsObjectKeys(t *testing.T) {
	v := Object(map[string]Value{
		"zebra": String("z"),
		"alpha": String("a"),
		"mango": String("m"),
	})

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mango":"m","zebra":"z"}`, string(out))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected bool
	}{
		{
			name:     "identical objects with different key order",
			a:        `{"title":"A","body":"text"}`,
			b:        `{"body":"text","title":"A"}`,
			expected: true,
		},
		{
			name:     "different scalar",
			a:        `{"title":"A"}`,
			b:        `{"title":"B"}`,
			expected: false,
		},
		{
			name:     "array order matters",
			a:        `{"tags":["a","b"]}`,
			b:        `{"tags":["b","a"]}`,
			expected: false,
		},
		{
			name:     "kind change",
			a:        `{"count":1}`,
			b:        `{"count":"1"}`,
			expected: false,
		},
		{
			name:     "missing key",
			a:        `{"a":1,"b":2}`,
			b:        `{"a":1}`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av, err := FromJSON([]byte(tt.a))
			require.NoError(t, err)
			bv, err := FromJSON([]byte(tt.b))
			require.NoError(t, err)

			assert.Equal(t, tt.expected, av.Equal(bv))
			assert.Equal(t, tt.expected, bv.Equal(av))
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	original, err := FromJSON([]byte(`{"lessons":[{"title":"One"}],"title":"Course"}`))
	require.NoError(t, err)

	clone := original.Clone()
	require.NoError(t, clone.SetPath("title", String("Changed")))
	require.NoError(t, clone.SetPath("lessons[0].title", String("Altered")))

	got, ok := original.GetPath("title")
	require.True(t, ok)
	assert.Equal(t, "Course", got.AsString())

	got, ok = original.GetPath("lessons[0].title")
	require.True(t, ok)
	assert.Equal(t, "One", got.AsString())
}

func TestGetPath(t *testing.T) {
	doc, err := FromJSON([]byte(`{"modules":[{"lessons":["a","b"],"title":"M1"},{"title":"M2"}],"title":"Course"}`))
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		found    bool
		expected string
	}{
		{name: "top level key", path: "title", found: true, expected: "Course"},
		{name: "array element field", path: "modules[1].title", found: true, expected: "M2"},
		{name: "nested array element", path: "modules[0].lessons[1]", found: true, expected: "b"},
		{name: "missing key", path: "missing", found: false},
		{name: "index out of range", path: "modules[5].title", found: false},
		{name: "index into scalar", path: "title[0]", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := doc.GetPath(tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.expected, got.AsString())
			}
		})
	}
}

func TestComparePaths(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{name: "equal", a: "title", b: "title", expected: 0},
		{name: "key order", a: "body", b: "title", expected: -1},
		{name: "single digit indices", a: "tags[1]", b: "tags[2]", expected: -1},
		{name: "double digit after single digit", a: "tags[9]", b: "tags[10]", expected: -1},
		{name: "double digit reversed", a: "tags[10]", b: "tags[9]", expected: 1},
		{name: "prefix before extension", a: "modules[2]", b: "modules[2].title", expected: -1},
		{name: "nested indices", a: "modules[9].lessons[10]", b: "modules[10].lessons[0]", expected: -1},
		{name: "unparseable falls back to strings", a: "", b: "title", expected: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComparePaths(tt.a, tt.b))
		})
	}
}

func TestSetPath(t *testing.T) {
	t.Run("OverwriteScalar", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"title":"A"}`))
		require.NoError(t, err)

		require.NoError(t, doc.SetPath("title", String("B")))
		got, _ := doc.GetPath("title")
		assert.Equal(t, "B", got.AsString())
	})

	t.Run("CreatesIntermediateObjects", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{}`))
		require.NoError(t, err)

		require.NoError(t, doc.SetPath("meta.author.name", String("sage")))
		got, ok := doc.GetPath("meta.author.name")
		require.True(t, ok)
		assert.Equal(t, "sage", got.AsString())
	})

	t.Run("AppendToArray", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"tags":["a"]}`))
		require.NoError(t, err)

		require.NoError(t, doc.SetPath("tags[1]", String("b")))
		got, ok := doc.GetPath("tags[1]")
		require.True(t, ok)
		assert.Equal(t, "b", got.AsString())
	})

	t.Run("IndexBeyondLengthFails", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"tags":["a"]}`))
		require.NoError(t, err)

		assert.Error(t, doc.SetPath("tags[5]", String("b")))
	})

	t.Run("KeyOnScalarFails", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"title":"A"}`))
		require.NoError(t, err)

		assert.Error(t, doc.SetPath("title.sub", String("b")))
	})
}

func TestDeletePath(t *testing.T) {
	t.Run("RemovesKey", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"body":"text","title":"A"}`))
		require.NoError(t, err)

		require.NoError(t, doc.DeletePath("body"))
		_, ok := doc.GetPath("body")
		assert.False(t, ok)
	})

	t.Run("RemovesArrayElement", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"tags":["a","b","c"]}`))
		require.NoError(t, err)

		require.NoError(t, doc.DeletePath("tags[1]"))
		got, _ := doc.GetPath("tags")
		require.Equal(t, 2, got.Len())
		first, _ := doc.GetPath("tags[0]")
		second, _ := doc.GetPath("tags[1]")
		assert.Equal(t, "a", first.AsString())
		assert.Equal(t, "c", second.AsString())
	})

	t.Run("MissingPathIsNoOp", func(t *testing.T) {
		doc, err := FromJSON([]byte(`{"title":"A"}`))
		require.NoError(t, err)

		assert.NoError(t, doc.DeletePath("missing.deep.path"))
	})
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "flat strings", input: `{"body":"two words","title":"one"}`, expected: 3},
		{name: "nested and arrays", input: `{"sections":[{"text":"alpha beta gamma"},{"text":"delta"}]}`, expected: 4},
		{name: "non string leaves ignored", input: `{"count":12,"flag":true,"nothing":null}`, expected: 0},
		{name: "empty document", input: `{}`, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromJSON([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, WordCount(v))
		})
	}
}

func TestScan_Value(t *testing.T) {
	t.Run("ScanBytes", func(t *testing.T) {
		var v Value
		require.NoError(t, v.Scan([]byte(`{"title":"A"}`)))
		got, ok := v.GetPath("title")
		require.True(t, ok)
		assert.Equal(t, "A", got.AsString())
	})

	t.Run("ScanNil", func(t *testing.T) {
		var v Value
		require.NoError(t, v.Scan(nil))
		assert.True(t, v.IsNull())
	})

	t.Run("ValueIsCanonical", func(t *testing.T) {
		v, err := FromJSON([]byte(`{"b":1,"a":2}`))
		require.NoError(t, err)

		raw, err := v.Value()
		require.NoError(t, err)
		assert.Equal(t, `{"a":2,"b":1}`, string(raw.([]byte)))
	})
}
