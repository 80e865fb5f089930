package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	chunks := Chunk(ids, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)

	assert.Equal(t, [][]string{ids}, Chunk(ids, 0))
	assert.Nil(t, Chunk([]string{}, 3))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", Placeholder(3))
}
