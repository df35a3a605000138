package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkQueue(t *testing.T) {
	q := NewWorkQueue()
	assert.True(t, q.IsEmpty())

	assert.True(t, q.Enqueue("a.md"))
	assert.True(t, q.Enqueue("b.md"))
	assert.False(t, q.Enqueue("a.md"))
	assert.Equal(t, 2, q.Len())

	id, ok := q.DrainOne()
	assert.True(t, ok)
	assert.Equal(t, "a.md", id)

	// Once drained an ID may be queued again, behind the rest
	assert.True(t, q.Enqueue("a.md"))

	id, _ = q.DrainOne()
	assert.Equal(t, "b.md", id)
	id, _ = q.DrainOne()
	assert.Equal(t, "a.md", id)

	_, ok = q.DrainOne()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}
