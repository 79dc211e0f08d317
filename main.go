package main

import (
	"fmt"
	"os"

	"github.com/streed/snap-notes/cmd"
	"github.com/streed/snap-notes/internal/mcp"
	"github.com/streed/snap-notes/internal/peers"
)

// Version is set via ldflags during build
var Version = "dev"

func main() {
	cmd.Version = Version
	mcp.ServerVersion = Version
	peers.ClientVersion = Version

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
