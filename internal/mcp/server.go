// Package mcp runs the Cadence MCP server over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	cadencemcp "github.com/felixgeelhaar/cadence/adapter/mcp"
	"github.com/felixgeelhaar/cadence/pkg/config"
	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
)

const serverName = "cadence-mcp"

// NewServer builds an MCP server backed by the CLI application handlers.
func NewServer(cliApp *cli.App, version string) (*mcpgo.Server, error) {
	if cliApp == nil {
		return nil, errors.New("CLI app is required")
	}
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    serverName,
		Version: version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})
	if err := cadencemcp.Register(srv, cadencemcp.Dependencies{App: cliApp}); err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve listens on cfg.MCPAddr until ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, version string, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cliApp, version)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

// middlewareStack puts bearer auth in front of the default stack when a
// token is configured.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger}
	stack := middleware.DefaultStack(log)
	if token == "" {
		logger.Warn("MCP_AUTH_TOKEN not set, MCP requests are unauthenticated")
		return stack
	}
	auth := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "cadence", Name: "cadence"},
	}))
	return append([]middleware.Middleware{middleware.Auth(auth, middleware.WithAuthLogger(log))}, stack...)
}

// slogAdapter satisfies the mcp-go middleware logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, fields ...middleware.Field) {
	a.l.Debug(msg, fieldsToArgs(fields)...)
}

func (a slogAdapter) Info(msg string, fields ...middleware.Field) {
	a.l.Info(msg, fieldsToArgs(fields)...)
}

func (a slogAdapter) Warn(msg string, fields ...middleware.Field) {
	a.l.Warn(msg, fieldsToArgs(fields)...)
}

func (a slogAdapter) Error(msg string, fields ...middleware.Field) {
	a.l.Error(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
