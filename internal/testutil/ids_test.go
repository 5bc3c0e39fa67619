package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs_Increments(t *testing.T) {
	gen := NewSequentialIDs("snap")

	assert.Equal(t, "snap-1", gen.NewID())
	assert.Equal(t, "snap-2", gen.NewID())
	assert.Equal(t, "snap-3", gen.NewID())
}

func TestSequentialIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialIDs("")

	assert.Equal(t, "run-1", gen.NewID())
}
