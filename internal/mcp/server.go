package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/streed/snap-notes/internal/constants"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/search"
	"github.com/streed/snap-notes/internal/services"
)

// ServerVersion is reported to MCP clients.
var ServerVersion = "dev"

type NotesServer struct {
	svc       *services.Services
	mcpServer *server.MCPServer
}

func NewNotesServer(svc *services.Services) *NotesServer {
	ns := &NotesServer{svc: svc}

	ns.mcpServer = server.NewMCPServer(
		"snap-notes",
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	ns.registerTools()
	ns.registerResources()
	ns.registerPrompts()

	return ns
}

func (s *NotesServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *NotesServer) registerTools() {
	searchTool := mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search over captured screenshot notes. Results are ranked by relevance, newest first among equal scores."),
		mcp.WithString("query",
			mcp.Description("Free-text query (optional; empty lists newest notes)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags; a note must carry all of them"),
		),
		mcp.WithString("from",
			mcp.Description("Earliest capture date, YYYY-MM-DD or RFC 3339 (inclusive)"),
		),
		mcp.WithString("to",
			mcp.Description("Latest capture date, YYYY-MM-DD or RFC 3339 (inclusive)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 50)"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchNotes)

	getNoteTool := mcp.NewTool("get_note",
		mcp.WithDescription("Get a note by ID, including extracted text and post-processing output"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Note ID, e.g. 20250804_142512"),
		),
	)
	s.mcpServer.AddTool(getNoteTool, s.handleGetNote)

	listNotesTool := mcp.NewTool("list_notes",
		mcp.WithDescription("List the most recent notes"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of notes to return (default: 20)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags to filter by"),
		),
	)
	s.mcpServer.AddTool(listNotesTool, s.handleListNotes)

	s.mcpServer.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List all tags with their note counts"),
	), s.handleListTags)

	s.mcpServer.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Entry count, date span and tag histogram of the search index"),
	), s.handleIndexStats)

	s.mcpServer.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the search index from the note files on disk"),
	), s.handleRebuildIndex)

	s.mcpServer.AddTool(mcp.NewTool("list_peers",
		mcp.WithDescription("List configured post-processing peers without contacting them"),
	), s.handleListPeers)

	testPeerTool := mcp.NewTool("test_peer",
		mcp.WithDescription("Handshake with a post-processing peer and list its tools"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Peer name from the configuration"),
		),
	)
	s.mcpServer.AddTool(testPeerTool, s.handleTestPeer)
}

func (s *NotesServer) registerResources() {
	recentResource := mcp.NewResource("notes://recent",
		"Recent Notes",
		mcp.WithResourceDescription("The most recently captured notes"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(recentResource, s.handleRecentNotes)

	statsResource := mcp.NewResource("notes://stats",
		"Index Statistics",
		mcp.WithResourceDescription("Statistics about the search index"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(statsResource, s.handleStats)

	configResource := mcp.NewResource("notes://config",
		"Configuration",
		mcp.WithResourceDescription("Current snap-notes configuration"),
		mcp.WithMIMEType("text/plain"),
	)
	s.mcpServer.AddResource(configResource, s.handleConfig)
}

func (s *NotesServer) registerPrompts() {
	searchPrompt := mcp.NewPrompt("search_notes",
		mcp.WithPromptDescription("Search captured notes"),
		mcp.WithArgument("query",
			mcp.ArgumentDescription("Search query string"),
		),
		mcp.WithArgument("limit",
			mcp.ArgumentDescription("Maximum number of results (default: 10)"),
		),
	)
	s.mcpServer.AddPrompt(searchPrompt, s.handleSearchPrompt)

	summarizePrompt := mcp.NewPrompt("summarize_notes",
		mcp.WithPromptDescription("Summarize the notes captured in the last few days"),
		mcp.WithArgument("days",
			mcp.ArgumentDescription("How many days back to include (default: 1)"),
		),
	)
	s.mcpServer.AddPrompt(summarizePrompt, s.handleSummarizePrompt)
}

func splitTags(tagsStr string) []string {
	var tags []string
	for _, tag := range strings.Split(tagsStr, ",") {
		if cleanTag := strings.TrimSpace(tag); cleanTag != "" {
			tags = append(tags, cleanTag)
		}
	}
	return tags
}

func formatEntries(header string, entries []models.IndexEntry) string {
	var b strings.Builder
	b.WriteString(header)
	for i, e := range entries {
		tagsInfo := ""
		if len(e.Tags) > 0 {
			tagsInfo = fmt.Sprintf(" [Tags: %s]", strings.Join(e.Tags, ", "))
		}
		fmt.Fprintf(&b, "%d. [ID: %s] %s%s (Captured: %s)\n", i+1, e.ID, e.Title, tagsInfo,
			e.Created.Local().Format("2006-01-02 15:04"))
		preview := e.Snippet
		if preview == "" {
			preview = truncateString(strings.Join(strings.Fields(e.Text), " "), constants.ShortPreviewLength)
		}
		if preview != "" {
			fmt.Fprintf(&b, "   %s\n", preview)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Tool handlers
func (s *NotesServer) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: search_notes")

	q := search.Query{
		Text:  request.GetString("query", ""),
		Tags:  splitTags(request.GetString("tags", "")),
		Limit: request.GetInt("limit", 0),
	}
	var err error
	if q.From, err = search.ParseDate(request.GetString("from", ""), false, time.Local); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.To, err = search.ParseDate(request.GetString("to", ""), true, time.Local); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := s.svc.Index.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No notes found matching your query."), nil
	}
	return mcp.NewToolResultText(formatEntries(fmt.Sprintf("Found %d notes:\n\n", len(entries)), entries)), nil
}

func (s *NotesServer) handleGetNote(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: get_note")

	id, err := request.RequireString("id")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'id': %w", err)
	}

	note, err := s.svc.Store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Note ID: %s\nTitle: %s\nCaptured: %s\nPath: %s\nImage: %s",
		note.ID, note.Title, note.Created.Format("2006-01-02 15:04:05 MST"), note.Path, s.svc.Store.ImagePath(note))
	if len(note.Tags) > 0 {
		result += fmt.Sprintf("\nTags: %s", strings.Join(note.Tags, ", "))
	}
	result += "\n\n" + note.Body
	return mcp.NewToolResultText(result), nil
}

func (s *NotesServer) handleListNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: list_notes")

	entries, err := s.svc.Index.Recent(ctx, request.GetInt("limit", constants.DefaultListLimit), splitTags(request.GetString("tags", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list notes: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No notes found."), nil
	}
	return mcp.NewToolResultText(formatEntries(fmt.Sprintf("Listing %d notes:\n\n", len(entries)), entries)), nil
}

func (s *NotesServer) handleListTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: list_tags")

	tags, err := s.svc.Index.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get tags: %v", err)), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("No tags found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tags:\n\n", len(tags))
	for _, t := range tags {
		fmt.Fprintf(&b, "- %s (%d)\n", t.Tag, t.Count)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *NotesServer) handleIndexStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: index_stats")

	stats, err := s.svc.Index.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

func (s *NotesServer) handleRebuildIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: rebuild_index")

	res, err := s.svc.Index.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rebuilt search index: %d notes indexed, %d files skipped (%v)",
		res.Indexed, res.Skipped, res.Duration.Round(time.Millisecond))), nil
}

func (s *NotesServer) handleListPeers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: list_peers")
	return jsonResult(s.svc.Router.List())
}

func (s *NotesServer) handleTestPeer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Debug("MCP tool call: test_peer")

	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter 'name': %w", err)
	}
	res, err := s.svc.Router.Test(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// Resource handlers
func (s *NotesServer) handleRecentNotes(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logger.Debug("MCP resource read: notes://recent")

	entries, err := s.svc.Index.Recent(ctx, constants.DefaultListLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent notes: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (s *NotesServer) handleStats(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logger.Debug("MCP resource read: notes://stats")

	stats, err := s.svc.Index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %w", err)
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (s *NotesServer) handleConfig(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	logger.Debug("MCP resource read: notes://config")

	cfg := s.svc.Config
	content := fmt.Sprintf(`Snap Notes Configuration:
- Debug Mode: %v
- Data Directory: %s
- Index Path: %s
- OCR Enabled: %v
- VLM Enabled: %v (%s)
- Peers: %d configured, %d enabled`,
		cfg.Debug,
		cfg.DataDirectory,
		cfg.GetIndexPath(),
		cfg.OCR.Enabled,
		cfg.VLM.Enabled, cfg.VLM.Provider,
		len(cfg.Peers), len(cfg.EnabledPeers()))

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "text/plain", Text: content},
	}, nil
}

// Prompt handlers
func (s *NotesServer) handleSearchPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	query := request.Params.Arguments["query"]
	limitStr := request.Params.Arguments["limit"]
	limit := 10
	if limitStr != "" {
		_, _ = fmt.Sscanf(limitStr, "%d", &limit)
	}

	prompt := fmt.Sprintf("Search my screenshot notes for: %s\n\nUse the search_notes tool and show up to %d results.", query, limit)
	return &mcp.GetPromptResult{
		Description: "Search prompt for notes",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(prompt),
			},
		},
	}, nil
}

func (s *NotesServer) handleSummarizePrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	days := 1
	if d := request.Params.Arguments["days"]; d != "" {
		_, _ = fmt.Sscanf(d, "%d", &days)
	}
	period := models.LookbackPeriod(models.PeriodDaily, time.Now(), days)

	entries, err := s.svc.Index.Search(ctx, search.Query{From: period.From, To: period.To, Limit: constants.MaxSearchLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to get notes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please summarize the screenshot notes I captured in the last %d day(s):\n\n", days)
	for i, e := range entries {
		fmt.Fprintf(&b, "Note %d - %s:\n%s\n\n", i+1, e.Title, truncateString(e.Text, constants.SummaryNoteMaxChars))
		if i >= 20 {
			fmt.Fprintf(&b, "... and %d more notes\n", len(entries)-21)
			break
		}
	}

	return &mcp.GetPromptResult{
		Description: "Summary prompt for recent notes",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}

// Helper function to truncate strings
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
