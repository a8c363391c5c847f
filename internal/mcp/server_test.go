package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/mcp-go/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ValidatesArguments(t *testing.T) {
	ctx := context.Background()

	err := Serve(ctx, nil, &cli.App{}, "test", nil)
	assert.EqualError(t, err, "config is required")

	err = Serve(ctx, &config.Config{}, nil, "test", nil)
	assert.EqualError(t, err, "CLI app is required")
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(&cli.App{}, "1.0.0")
	require.NoError(t, err)
	assert.NotNil(t, srv)

	_, err = NewServer(nil, "1.0.0")
	assert.Error(t, err)
}

func TestMiddlewareStack_AuthPrepended(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	open := middlewareStack("", logger)
	secured := middlewareStack("s3cret", logger)
	assert.Len(t, secured, len(open)+1)
}

func TestFieldsToArgs(t *testing.T) {
	args := fieldsToArgs([]middleware.Field{
		{Key: "tool", Value: "comms.submit"},
		{Key: "duration_ms", Value: 12},
	})
	assert.Equal(t, []any{"tool", "comms.submit", "duration_ms", 12}, args)
	assert.Empty(t, fieldsToArgs(nil))
}
