// Package mcp exposes Cadence scheduling over the Model Context Protocol.
package mcp

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

// Dependencies carries the CLI application whose handlers back every tool.
type Dependencies struct {
	App *cli.App
}

// Register installs tools, resources and prompts on srv.
func Register(srv *mcp.Server, deps Dependencies) error {
	if err := RegisterCLITools(srv, deps); err != nil {
		return err
	}
	if err := RegisterResources(srv, deps); err != nil {
		return fmt.Errorf("register resources: %w", err)
	}
	if err := RegisterPrompts(srv, deps); err != nil {
		return fmt.Errorf("register prompts: %w", err)
	}
	return nil
}

// RegisterCLITools installs the tools that mirror the cadence CLI commands.
func RegisterCLITools(srv *mcp.Server, deps Dependencies) error {
	switch {
	case srv == nil:
		return errors.New("server is required")
	case deps.App == nil:
		return errors.New("app is required")
	}
	for _, register := range []func(*mcp.Server, Dependencies) error{registerCoreTools, registerCommsTools} {
		if err := register(srv, deps); err != nil {
			return err
		}
	}
	return nil
}
