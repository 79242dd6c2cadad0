package api

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Results:   session.NewMachine(store, nil),
		Guestbook: store,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	require.NotNil(t, NewMCPServer(deps))
}

func TestMCPTool_GetResult(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	ctx := context.Background()
	handler := mcpGetResult(deps)

	res, err := handler(ctx, makeCallToolRequest("get_result", map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, toolText(t, res), "not found")

	res, err = handler(ctx, makeCallToolRequest("get_result", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	require.NoError(t, store.CreateSession(ctx, storage.Session{ID: "s1", Name: "Kim", Role: "Developer"}))
	res, err = handler(ctx, makeCallToolRequest("get_result", map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(t, res))

	var out session.Outcome
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &out))
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, storage.StatusAnalyzing, out.Status)
}

func TestMCPTool_ListGuestbook(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	ctx := context.Background()
	poster := guestbook.NewPoster(store)
	for i := range 3 {
		_, err := poster.Post(ctx, guestbook.NewEntry{SessionID: "s1", Role: "Developer", Message: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}
	handler := mcpListGuestbook(deps)

	res, err := handler(ctx, makeCallToolRequest("list_guestbook", map[string]any{"limit": 2}))
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(t, res))

	var page guestbook.Page
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &page))
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	res, err = handler(ctx, makeCallToolRequest("list_guestbook", map[string]any{"limit": 2, "cursor": page.NextCursor}))
	require.NoError(t, err)
	page = guestbook.Page{}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &page))
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)

	res, err = handler(ctx, makeCallToolRequest("list_guestbook", map[string]any{"cursor": "!!!"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "invalid cursor", toolText(t, res))
}
