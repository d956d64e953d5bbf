package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/document"
)

func TestGenerate_Deterministic(t *testing.T) {
	doc, err := document.FromJSON([]byte(`{"body":"text","tags":["a","b"],"title":"Course"}`))
	require.NoError(t, err)

	first := Generate(doc)
	second := Generate(doc)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a, err := document.FromJSON([]byte(`{"title":"A","body":"text"}`))
	require.NoError(t, err)
	b, err := document.FromJSON([]byte(`{"body":"text","title":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, Generate(a), Generate(b))
}

func TestGenerate_DetectsChanges(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{name: "scalar change", a: `{"title":"A"}`, b: `{"title":"B"}`},
		{name: "added key", a: `{"title":"A"}`, b: `{"body":"x","title":"A"}`},
		{name: "array order", a: `{"tags":["a","b"]}`, b: `{"tags":["b","a"]}`},
		{name: "type change", a: `{"count":1}`, b: `{"count":"1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av, err := document.FromJSON([]byte(tt.a))
			require.NoError(t, err)
			bv, err := document.FromJSON([]byte(tt.b))
			require.NoError(t, err)

			assert.True(t, HasChanged(Generate(av), Generate(bv)))
		})
	}
}

func TestGenerateFromJSON(t *testing.T) {
	hash, err := GenerateFromJSON([]byte(`{"title":"A"}`))
	require.NoError(t, err)

	doc, err := document.FromJSON([]byte(`{"title":"A"}`))
	require.NoError(t, err)
	assert.Equal(t, Generate(doc), hash)

	_, err = GenerateFromJSON([]byte(`{not json`))
	assert.Error(t, err)
}
