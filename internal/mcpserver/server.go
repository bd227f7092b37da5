// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp   *server.MCPServer
	org   *organizer.Organizer
	store rules.Store
}

// New creates a new MCP server with all Othala tools registered.
func New(org *organizer.Organizer, store rules.Store) *Server {
	s := &Server{org: org, store: store}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("organize_file",
		mcp.WithDescription("Run the organization pipeline for a single file: extract its "+
			"content, match it against the configured rules, and move it into the matched "+
			"destination. The file stays where it is when no rule matches."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file to organize")),
	), s.organizeFile)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List all organization rules with their keywords and destinations."),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("recent_moves",
		mcp.WithDescription("Show the most recent entries of the move audit log, newest first."),
		mcp.WithString("limit", mcp.Description("Optional maximum number of entries")),
	), s.recentMoves)

	s.mcp.AddTool(mcp.NewTool("undo_last_move",
		mcp.WithDescription("Move the most recently organized file back to where it came from."),
	), s.undoLastMove)

	s.mcp.AddTool(mcp.NewTool("watcher_status",
		mcp.WithDescription("Report whether folder monitoring is active and what the pipeline is doing."),
	), s.watcherStatus)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) organizeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := s.org.ProcessFile(ctx, path, rules.TriggerPlugin)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("organized: %s -> %s (rule %s)", path, op.DestinationPath, op.RuleName)), nil
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.store.ListRules(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) recentMoves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 0
	if raw, err := req.RequireString("limit"); err == nil && raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return mcp.NewToolResultError("limit must be a number"), nil
		}
		limit = n
	}
	moves, err := s.store.RecentMoves(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(moves, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) undoLastMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, err := s.org.UndoLast(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored: %s", op.DestinationPath)), nil
}

func (s *Server) watcherStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.org.State()
	status := map[string]interface{}{
		"active":          state.Active,
		"processing":      state.Processing,
		"current_file":    state.CurrentFile,
		"processed_count": state.ProcessedCount,
		"watched_path":    s.org.WatchedPath(),
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
