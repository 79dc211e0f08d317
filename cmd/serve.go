package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/api"
	"github.com/streed/snap-notes/internal/logger"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start an HTTP API server exposing snap-notes over REST. The server provides
endpoints for:

- Capture upload (multipart PNG) through the full pipeline
- Search by text, tags and date range
- Note and image retrieval
- Index rebuild and statistics
- Peer listing and testing
- On-demand summaries

The API is documented at http://host:port/api/v1/docs when the server is running.

Examples:
  snap-notes serve                             # Start on localhost:8080
  snap-notes serve --host 0.0.0.0 --port 3000  # Start on all interfaces, port 3000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind the server to")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to bind the server to")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("Initializing HTTP API server...")

	apiServer := api.NewAPIServer(svc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- apiServer.Start(serveHost, servePort)
	}()

	fmt.Printf("\nsnap-notes HTTP API Server\n")
	fmt.Printf("Server URL: http://%s:%d\n", serveHost, servePort)
	fmt.Printf("API Docs:   http://%s:%d/api/v1/docs\n", serveHost, servePort)
	fmt.Printf("Health:     http://%s:%d/api/v1/health\n", serveHost, servePort)
	fmt.Printf("\nExample API calls:\n")
	fmt.Printf("   curl -F image=@shot.png -F tags=work http://%s:%d/api/v1/captures\n", serveHost, servePort)
	fmt.Printf("   curl http://%s:%d/api/v1/notes\n", serveHost, servePort)
	fmt.Printf("   curl -X POST -d '{\"query\":\"budget\"}' http://%s:%d/api/v1/notes/search\n", serveHost, servePort)
	fmt.Printf("\nPress Ctrl+C to stop the server\n\n")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, shutting down gracefully...", sig)
		if err := apiServer.Stop(); err != nil {
			logger.Error("Error during server shutdown: %v", err)
			return err
		}
		logger.Info("Server stopped successfully")
		return nil
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error: %v", err)
			return err
		}
		return nil
	}
}
