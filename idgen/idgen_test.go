package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/submeta/clock"
)

func TestNewAccessionLength(t *testing.T) {
	g := NewGenerator()
	id, err := g.NewAccession()
	assert.NoError(t, err)
	assert.Len(t, id, 26)
}

func TestNewAccessionIsTimeOrdered(t *testing.T) {
	seq := &clock.SequenceClock{Start: time.Unix(1_700_000_000, 0).UTC(), Step: time.Second}
	g := &Generator{Clock: seq}
	first, err := g.NewAccession()
	assert.NoError(t, err)
	second, err := g.NewAccession()
	assert.NoError(t, err)
	assert.Less(t, first[:10], second[:10], "timestamp prefix should sort earlier to later")
}

func TestNewAccessionUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := g.NewAccession()
		assert.NoError(t, err)
		assert.False(t, seen[id], "collision detected")
		seen[id] = true
	}
}
