package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToLimitThenBlocks(t *testing.T) {
	l := New(Config{Limit: 3, Span: time.Minute}, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "user-1"), "request %d should be allowed", i)
	}
	assert.False(t, l.Allow(ctx, "user-1"))
}

func TestLimiter_TracksKeysIndependently(t *testing.T) {
	l := New(Config{Limit: 1, Span: time.Minute}, false)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "user-1"))
	assert.True(t, l.Allow(ctx, "user-2"))
	assert.False(t, l.Allow(ctx, "user-1"))
}
