package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
)

// ResultReader reads a session outcome.
type ResultReader interface {
	Read(ctx context.Context, id string) (session.Outcome, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Results   ResultReader
	Guestbook guestbook.Store
	Version   string
}

// NewMCPServer creates an MCP server with the read-only doomclock tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"doomclock",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("doomclock: automation risk analyses and the public guestbook."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_result",
			mcp.WithDescription("Fetch the status and, once completed, the full analysis of a survey session."),
			mcp.WithString("session_id", mcp.Description("Session id the survey was submitted with"), mcp.Required()),
		),
		mcpGetResult(deps),
	)

	s.AddTool(
		mcp.NewTool("list_guestbook",
			mcp.WithDescription("List guestbook entries newest first."),
			mcp.WithNumber("limit", mcp.Description("Page size, 1 to 100 (default 20)")),
			mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
		),
		mcpListGuestbook(deps),
	)

	return s
}

func mcpGetResult(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sid, err := req.RequireString("session_id")
		if err != nil || sid == "" {
			return mcpError("session_id is required"), nil
		}

		out, err := deps.Results.Read(ctx, sid)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("session %s not found", sid)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("reading session: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpListGuestbook(deps MCPDeps) server.ToolHandlerFunc {
	feed := guestbook.NewFeed(deps.Guestbook)
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", guestbook.DefaultLimit)
		cursor := req.GetString("cursor", "")

		page, err := feed.List(ctx, limit, cursor)
		if errors.Is(err, guestbook.ErrInvalidCursor) {
			return mcpError("invalid cursor"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("listing guestbook: %v", err)), nil
		}
		return mcpJSON(page)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
