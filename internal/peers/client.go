package peers

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/streed/snap-notes/internal/config"
)

// ClientVersion is reported to peers during the handshake.
var ClientVersion = "dev"

// Client is the subset of the MCP client the router needs.
type Client interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Launcher starts a transport to a peer. The returned client has not been
// initialized yet.
type Launcher func(ctx context.Context, spec config.PeerConfig) (Client, error)

// StdioLauncher spawns the peer's command and speaks MCP over its
// stdin/stdout.
func StdioLauncher(_ context.Context, spec config.PeerConfig) (Client, error) {
	c, err := client.NewStdioMCPClient(spec.Command, envList(spec.Env), spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start peer %s: %w", spec.Name, err)
	}
	return c, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func initializeRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "snap-notes",
		Version: ClientVersion,
	}
	return req
}

// handshake initializes c and returns the server's reported name.
func handshake(ctx context.Context, c Client) (string, error) {
	res, err := c.Initialize(ctx, initializeRequest())
	if err != nil {
		return "", fmt.Errorf("initialize failed: %w", err)
	}
	return res.ServerInfo.Name, nil
}
