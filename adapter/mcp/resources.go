package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/communications/application/queries"
	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose Cadence data.
func RegisterResources(srv *mcp.Server, deps Dependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	srv.Resource("cadence://communications/pending").
		Name("Pending communications").
		Description("Communications waiting to be sent, including those in delivery").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ListLiveHandler == nil {
				return nil, fmt.Errorf("listing requires the scheduling engine")
			}
			comms, err := app.ListLiveHandler.Handle(ctx, queries.ListLiveQuery{IncludeInFlight: true})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, comms)
		})

	srv.Resource("cadence://communications/history").
		Name("Communication history").
		Description("Delivered and failed communications from the last 7 days").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ListHistoryHandler == nil {
				return nil, fmt.Errorf("history requires database connection")
			}
			comms, err := app.ListHistoryHandler.Handle(ctx, queries.ListHistoryQuery{SinceHours: 168, Limit: 100})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, comms)
		})

	srv.Resource("cadence://channels").
		Name("Channels").
		Description("Delivery channel connectivity").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ChannelStatusHandler == nil {
				return nil, fmt.Errorf("channel status requires the dispatcher")
			}
			status, err := app.ChannelStatusHandler.Handle(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, status)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
