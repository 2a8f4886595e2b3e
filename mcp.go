package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

// newMCPServer exposes the parameter store and scheduler counters as MCP tools.
func newMCPServer(params *Params, sched *Scheduler, log *slog.Logger) *server.MCPServer {
	log = log.With("component", "mcp")

	s := server.NewMCPServer(
		"Siren controller",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	describeTool := mcp.NewTool("siren_describe-channels",
		mcp.WithDescription("Lists the OSC control addresses the controller listens on, with their default values."),
	)
	s.AddTool(describeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Debug("handling describe request")
		return mcp.NewToolResultText(describeChannels()), nil
	})

	getTool := mcp.NewTool("siren_get-params",
		mcp.WithDescription("Returns the current value of every control parameter."),
	)
	s.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Debug("handling get params request")

		asJson, err := json.MarshalIndent(params.Snapshot(), "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal parameters to JSON")
		}
		return mcp.NewToolResultText(string(asJson)), nil
	})

	names := make([]string, 0, numParams)
	for _, p := range AllParams() {
		names = append(names, p.String())
	}
	setTool := mcp.NewTool("siren_set-param",
		mcp.WithDescription("Sets one control parameter, exactly as if a message had arrived on its OSC address."),
		mcp.WithString("name", mcp.Required(), mcp.Enum(names...), mcp.Description("The parameter name.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("The new value. No range check is applied; mode must be 1 for the voice to sound.")),
	)
	s.AddTool(setTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := request.RequireFloat("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := ParamByName(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		log.Info("setting parameter", "param", p.String(), "value", value)
		params.Set(p, value)
		return mcp.NewToolResultText(fmt.Sprintf("%s = %g", p, params.Get(p))), nil
	})

	resetTool := mcp.NewTool("siren_reset-params",
		mcp.WithDescription("Restores every control parameter to its default."),
	)
	s.AddTool(resetTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params.Reset()
		log.Info("parameters reset to defaults")
		return mcp.NewToolResultText("Parameters reset to defaults."), nil
	})

	statsTool := mcp.NewTool("siren_stats",
		mcp.WithDescription("Returns scheduler counters: cycles run, voices triggered, failed triggers and cycles skipped by the mode gate."),
	)
	s.AddTool(statsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		asJson, err := json.Marshal(sched.Stats())
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal stats")
		}
		return mcp.NewToolResultText(string(asJson)), nil
	})

	return s
}

func describeChannels() string {
	var b strings.Builder
	for _, p := range AllParams() {
		fmt.Fprintf(&b, "%s (default %g)\n", p.Address(), p.Default())
	}
	return b.String()
}
