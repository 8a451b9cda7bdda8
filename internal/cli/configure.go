package cli

import (
	"fmt"
	"os"

	"github.com/amira/goalflow/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to the config path if none exists,
then print the resulting configuration.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()

	if _, err := os.Stat(path); err == nil {
		cfg, err := loader.Load()
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		fmt.Printf("Config already exists at %s:\n%s\n", path, cfg)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote default config to %s:\n%s\n", path, cfg)
	fmt.Println("Set llm.api_key (or GOALFLOW_LLM_API_KEY) before starting the server.")
	return nil
}
