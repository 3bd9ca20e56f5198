package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/resume-analyzer/internal/ai/providers"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/logger"
	"github.com/spigell/resume-analyzer/internal/secrets"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Run: func(_ *cobra.Command, _ []string) {
			showConfig()
		},
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func showConfig() {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatal("loading the config", zap.Error(err))
	}

	if err := cfg.Validate(providers.Default().Kinds(), cache.Backends()); err != nil {
		logger.Warn("configuration is not usable", zap.Error(err))
	}

	masked := *cfg
	masked.Providers = make(map[string]*config.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		cp := *p
		if cp.APIKey == "" {
			if key, err := secrets.Load(secrets.Source{File: p.APIKeyFile, Env: p.APIKeyEnv}); err == nil {
				cp.APIKey = key
			}
		}
		cp.APIKey = secrets.Mask(cp.APIKey)
		masked.Providers[name] = &cp
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(os.Stderr, "# config file: %s\n", used)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		logger.Fatal("encoding config", zap.Error(err))
	}
	_ = enc.Close()
}
