package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))

	generated := CorrelationIDFromContext(WithCorrelationID(context.Background(), ""))
	assert.Len(t, generated, 36)

	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestNewRequestContext(t *testing.T) {
	t.Run("keeps parent correlation", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "parent")
		assert.Equal(t, "parent", CorrelationIDFromContext(ctx))
		assert.NotEmpty(t, RequestIDFromContext(ctx))
	})

	t.Run("generates correlation", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "")
		assert.NotEmpty(t, CorrelationIDFromContext(ctx))
		assert.NotEqual(t, CorrelationIDFromContext(ctx), RequestIDFromContext(ctx))
	})
}
