package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/services"
)

var (
	svc       *services.Services
	appConfig *config.Config
	debugFlag bool
	Version   = "dev" // Version is set from main.go
)

var rootCmd = &cobra.Command{
	Use:     "snap-notes",
	Short:   "Turn screenshots into searchable Markdown notes",
	Version: Version,
	Long: `snap-notes turns screenshots into Markdown notes. Each capture is run through
OCR and a vision model, handed to any configured post-processing peers, saved
next to its image and indexed for search.

First time users should run 'snap-notes init' to set up the configuration.`,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svc != nil {
			if err := svc.Close(); err != nil {
				logger.Debug("Error closing services: %v", err)
			}
		}
	},
}

func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initAppConfig)
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

func skipsInit() bool {
	if len(os.Args) < 2 {
		return true
	}
	switch os.Args[1] {
	case "init", "config", "help", "completion", "--help", "-h", "--version", "-v":
		return true
	}
	return false
}

func initAppConfig() {
	// init and config manage the file themselves
	if skipsInit() {
		return
	}

	var err error
	appConfig, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		fmt.Fprintf(os.Stderr, "Please run 'snap-notes init' to set up the configuration.\n")
		os.Exit(1)
	}

	if debugFlag || appConfig.Debug {
		logger.SetDebugMode(true)
		logger.Debug("Configuration loaded from: %s", func() string {
			path, _ := config.GetConfigPath()
			return path
		}())
		logger.Debug("Data directory: %s", appConfig.DataDirectory)
		logger.Debug("Index path: %s", appConfig.GetIndexPath())
		logger.Debug("OCR enabled: %v, VLM enabled: %v (%s)", appConfig.OCR.Enabled, appConfig.VLM.Enabled, appConfig.VLM.Provider)
		logger.Debug("Peers configured: %d", len(appConfig.Peers))
	}

	svc, err = services.NewServices(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing services: %v\n", err)
		os.Exit(1)
	}
}
