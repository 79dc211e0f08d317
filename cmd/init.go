package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize snap-notes configuration",
	Long: `Initialize snap-notes configuration interactively or with flags.
This command writes the configuration file and creates the data directory.`,
	RunE: runInit,
}

var (
	initDataDir        string
	initOllamaEndpoint string
	initInteractive    bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "Directory where notes and images are stored")
	initCmd.Flags().StringVar(&initOllamaEndpoint, "ollama-endpoint", "", "Ollama API endpoint (e.g., http://localhost:11434)")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Run interactive setup")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration already exists at: %s\n", configPath)
		fmt.Print("Do you want to overwrite it? (y/N): ")
		if !confirm(reader) {
			fmt.Println("Configuration initialization cancelled.")
			return nil
		}
	}

	if initInteractive || (initDataDir == "" && initOllamaEndpoint == "") {
		fmt.Println("=== snap-notes Configuration Setup ===")
		fmt.Println()

		defaultDataDir := config.GetDefaultDataDirectory()
		initDataDir = prompt(reader, "Data directory", defaultDataDir)
		initOllamaEndpoint = prompt(reader, "Ollama API endpoint", "http://localhost:11434")
	}
	if initDataDir != "" {
		initDataDir = expandPath(initDataDir)
	}

	cfg, err := config.InitializeConfig(initDataDir, initOllamaEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fmt.Println("\n=== Configuration Summary ===")
	fmt.Printf("Config file:     %s\n", configPath)
	fmt.Printf("Data directory:  %s\n", cfg.DataDirectory)
	fmt.Printf("Index path:      %s\n", cfg.GetIndexPath())
	fmt.Printf("OCR:             %v (%s)\n", cfg.OCR.Enabled, cfg.OCR.TesseractPath)
	fmt.Printf("Vision model:    %v (%s %s)\n", cfg.VLM.Enabled, cfg.VLM.Provider, cfg.VLM.Model)
	fmt.Printf("Summaries:       %v (%s %s)\n", cfg.Summary.Enabled, cfg.Summary.Provider, cfg.Summary.Model)

	fmt.Println("\nConfiguration initialized successfully!")
	fmt.Println("Add post-processing peers by editing the \"peers\" list in the config file.")
	if cfg.VLM.Enabled && cfg.VLM.Provider == config.ProviderOllama {
		fmt.Println("Make sure Ollama is running and has the vision model installed:")
		fmt.Printf("  ollama pull %s\n", cfg.VLM.Model)
	}
	return nil
}

func prompt(reader *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	input, _ := reader.ReadString('\n')
	if input = strings.TrimSpace(input); input != "" {
		return input
	}
	return def
}

func confirm(reader *bufio.Reader) bool {
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func expandPath(path string) string {
	path = config.ExpandPath(path)
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
