package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for LLM integration",
	Long: `Start a Model Context Protocol (MCP) server on stdio so LLM clients can
search your screenshot notes.

Tools:
- search_notes: Ranked search with tag and date filters
- get_note: Full note by ID
- list_notes: Most recent notes
- list_tags: Tag histogram
- index_stats: Index statistics
- rebuild_index: Rebuild the index from the note files
- list_peers / test_peer: Inspect post-processing peers

Resources:
- notes://recent, notes://stats, notes://config

Prompts:
- search_notes, summarize_notes

To use with Claude Desktop, add this to your claude_desktop_config.json:
{
  "mcpServers": {
    "snap-notes": {
      "command": "snap-notes",
      "args": ["mcp"]
    }
  }
}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	logger.Info("Starting MCP server...")

	notesServer := mcp.NewNotesServer(svc)
	mcpServer := notesServer.GetMCPServer()

	logger.Info("MCP server ready. Listening on stdio...")
	if err := server.ServeStdio(mcpServer); err != nil {
		if err.Error() != "EOF" {
			logger.Error("MCP server error: %v", err)
			return err
		}
	}

	logger.Info("MCP server shutting down")
	return nil
}
