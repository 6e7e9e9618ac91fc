package stopflags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddContainsRemove(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	assert.False(t, s.Contains(ctx, 1))
	s.Add(ctx, 1)
	assert.True(t, s.Contains(ctx, 1))
	s.Remove(ctx, 1)
	assert.False(t, s.Contains(ctx, 1))
}

func TestAddIsIdempotent(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	s.Add(ctx, 7)
	s.Add(ctx, 7)
	assert.True(t, s.Contains(ctx, 7))
}
