package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage snap-notes configuration",
	Long:  `View and manage snap-notes configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Available keys:
  ` + strings.Join(config.Keys, "\n  ") + `

Peers are edited directly in the config file.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println("=== snap-notes Configuration ===")
	fmt.Printf("Config file:         %s\n", configPath)
	fmt.Printf("data-dir:            %s\n", cfg.DataDirectory)
	fmt.Printf("index-path:          %s\n", cfg.GetIndexPath())
	fmt.Printf("debug:               %v\n", cfg.Debug)
	fmt.Printf("search-limit:        %d\n", cfg.SearchLimit(0))
	fmt.Printf("pipeline-timeout:    %s\n", cfg.PipelineTimeout.Std())
	fmt.Printf("peer-timeout:        %s\n", cfg.PeerTimeout.Std())
	if len(cfg.DefaultTags) > 0 {
		fmt.Printf("default tags:        %s\n", strings.Join(cfg.DefaultTags, ", "))
	}

	fmt.Println("\n--- OCR ---")
	fmt.Printf("ocr-enabled:         %v\n", cfg.OCR.Enabled)
	fmt.Printf("tesseract-path:      %s\n", cfg.OCR.TesseractPath)
	fmt.Printf("ocr-languages:       %s\n", cfg.OCR.Languages)
	fmt.Printf("ocr-min-confidence:  %.2f\n", cfg.OCR.MinConfidence)

	fmt.Println("\n--- Vision model ---")
	fmt.Printf("vlm-enabled:         %v\n", cfg.VLM.Enabled)
	fmt.Printf("vlm-provider:        %s\n", cfg.VLM.Provider)
	if cfg.VLM.Endpoint != "" {
		fmt.Printf("vlm-endpoint:        %s\n", cfg.VLM.Endpoint)
	}
	fmt.Printf("vlm-model:           %s\n", cfg.VLM.Model)

	fmt.Println("\n--- Summaries ---")
	fmt.Printf("summary-enabled:     %v\n", cfg.Summary.Enabled)
	fmt.Printf("summary-provider:    %s\n", cfg.Summary.Provider)
	fmt.Printf("summary-model:       %s\n", cfg.Summary.Model)
	fmt.Printf("daily-time:          %s\n", cfg.Summary.DailyTime)
	fmt.Printf("weekly-day:          %s\n", cfg.Summary.WeeklyDay)
	fmt.Printf("weekly-time:         %s\n", cfg.Summary.WeeklyTime)

	fmt.Println("\n--- Peers ---")
	if len(cfg.Peers) == 0 {
		fmt.Println("(none)")
	}
	for _, p := range cfg.Peers {
		state := "disabled"
		if p.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-20s %-8s %s %s\n", p.Name, state, p.Command, strings.Join(p.Args, " "))
	}

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println(configPath)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	oldIndex := cfg.GetIndexPath()
	if err := cfg.Set(key, value); err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	if cfg.GetIndexPath() != oldIndex {
		fmt.Println("\nWarning: The index location has changed.")
		fmt.Println("Run 'snap-notes reindex' to build the index from your notes.")
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, value)
	return nil
}
