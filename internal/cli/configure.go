package cli

import (
	"fmt"

	"github.com/harun/engram/internal/config"
	"github.com/spf13/cobra"
)

var (
	confAPIKey       string
	confModel        string
	confDataDir      string
	confGatewayOn    bool
	confGatewayPort  int
	confSharedSecret string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write or update the configuration file",
	Long: `Write or update the configuration file. Only flags that were
set on the command line override existing values; everything else is
preserved.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&confAPIKey, "api-key", "", "embedding service API key")
	configureCmd.Flags().StringVar(&confModel, "model", "", "embedding model name")
	configureCmd.Flags().StringVar(&confDataDir, "data-dir", "", "data directory")
	configureCmd.Flags().BoolVar(&confGatewayOn, "gateway", false, "enable the gateway server")
	configureCmd.Flags().IntVar(&confGatewayPort, "gateway-port", 0, "gateway port")
	configureCmd.Flags().StringVar(&confSharedSecret, "shared-secret", "", "gateway shared secret")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("api-key") {
		cfg.Embedding.APIKey = confAPIKey
	}
	if cmd.Flags().Changed("model") {
		cfg.Embedding.Model = confModel
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = confDataDir
	}
	if cmd.Flags().Changed("gateway") {
		cfg.Gateway.Enabled = confGatewayOn
	}
	if cmd.Flags().Changed("gateway-port") {
		cfg.Gateway.Port = confGatewayPort
	}
	if cmd.Flags().Changed("shared-secret") {
		cfg.Gateway.SharedSecret = confSharedSecret
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to %s\n", loader.GetConfigPath())
	fmt.Println(cfg.String())
	return nil
}
