// CLAUDE:SUMMARY MCP tools: stats, recent mentions, run history, and manual run triggers.
package mirador

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all mirador tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerStats(srv)
	svc.registerRecentMentions(srv)
	svc.registerRunSource(srv)
	svc.registerRunHistory(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func (svc *Service) registerStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mirador_stats",
		Description: "Aggregate mention and run counters",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, r *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := svc.Store().Stats(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return toolResult(st)
	})
}

func (svc *Service) registerRecentMentions(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
		Limit  int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "mirador_recent_mentions",
		Description: "Newest collected mentions, optionally filtered by source",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source name filter"},
			"limit":  map[string]any{"type": "integer", "description": "Max results, default 20"},
		}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, r *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return toolError(err), nil
			}
		}
		if p.Limit <= 0 {
			p.Limit = 20
		}
		mentions, err := svc.Store().ListMentions(ctx, p.Source, p.Limit)
		if err != nil {
			return toolError(err), nil
		}
		return toolResult(mentions)
	})
}

func (svc *Service) registerRunSource(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
	}
	tool := &mcp.Tool{
		Name:        "mirador_run_source",
		Description: "Trigger a collection run for a source (skipped if one is already underway)",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source name"},
		}, []string{"source"}),
	}
	srv.AddTool(tool, func(ctx context.Context, r *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return toolError(err), nil
		}
		switch err := svc.Trigger(p.Source); {
		case errors.Is(err, ErrRunInProgress):
			return toolResult(map[string]string{"source": p.Source, "status": "skipped", "reason": "run in progress"})
		case err != nil:
			return toolError(err), nil
		default:
			return toolResult(map[string]string{"source": p.Source, "status": "triggered"})
		}
	})
}

func (svc *Service) registerRunHistory(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
		Limit  int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "mirador_run_history",
		Description: "Run log entries with status and counters, newest first",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source name filter"},
			"limit":  map[string]any{"type": "integer", "description": "Max results, default 20"},
		}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, r *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return toolError(err), nil
			}
		}
		if p.Limit <= 0 {
			p.Limit = 20
		}
		runs, err := svc.Store().ListRuns(ctx, p.Source, p.Limit)
		if err != nil {
			return toolError(err), nil
		}
		return toolResult(runs)
	})
}
