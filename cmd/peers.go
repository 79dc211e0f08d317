package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Inspect post-processing peers",
	Long: `Post-processing peers are external programs speaking MCP over stdin/stdout.
Each capture is offered to every enabled peer after extraction.`,
}

var peersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured peers",
	Args:  cobra.NoArgs,
	RunE:  runPeersList,
}

var peersTestCmd = &cobra.Command{
	Use:   "test NAME",
	Short: "Start a peer and list its tools",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeersTest,
}

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.AddCommand(peersListCmd)
	peersCmd.AddCommand(peersTestCmd)
}

func runPeersList(cmd *cobra.Command, args []string) error {
	list := svc.Router.List()
	if len(list) == 0 {
		fmt.Println("No peers configured.")
		return nil
	}
	for _, p := range list {
		state := "disabled"
		if p.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-20s %-8s tool=%s command=%s\n", p.Name, state, p.Tool, p.Command)
	}
	return nil
}

func runPeersTest(cmd *cobra.Command, args []string) error {
	res, err := svc.Router.Test(context.Background(), args[0])
	if err != nil {
		return err
	}

	if !res.Reachable {
		fmt.Printf("%s: unreachable (%s)\n", res.Name, res.Error)
		return nil
	}
	fmt.Printf("%s: reachable in %v\n", res.Name, res.Latency.Round(time.Millisecond))
	if res.ServerName != "" {
		fmt.Printf("Server: %s\n", res.ServerName)
	}
	fmt.Printf("Tools:  %s\n", strings.Join(res.Tools, ", "))
	if !res.HasTool {
		fmt.Println("Warning: the configured tool is not offered by this peer.")
	}
	return nil
}
