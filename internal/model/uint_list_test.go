package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintList_ValueAndScan(t *testing.T) {
	v, err := UintList{3, 1, 2}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[3,1,2]", v)

	empty, err := UintList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	var l UintList
	require.NoError(t, l.Scan([]byte("[4,5]")))
	assert.Equal(t, UintList{4, 5}, l)

	require.NoError(t, l.Scan(nil))
	assert.Nil(t, l)

	require.Error(t, l.Scan(42))
	require.Error(t, l.Scan("not json"))
}

func TestChunk_EmbeddingRoundTrip(t *testing.T) {
	var c Chunk
	assert.Nil(t, c.EmbeddingVector())

	c.SetEmbedding([]float32{0.5, -1})
	assert.Equal(t, []float32{0.5, -1}, c.EmbeddingVector())

	c.SetEmbedding(nil)
	assert.Equal(t, "[]", c.Embedding)
	assert.Empty(t, c.EmbeddingVector())
}
