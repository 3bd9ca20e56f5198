package cmd

import (
	"context"
	"io"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-analyzer/internal/ai/providers"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/engine"
	"github.com/spigell/resume-analyzer/internal/logger"
)

const (
	app = "resume-analyzer"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-analyzer matches resumes against job descriptions with a pluggable LLM backend",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.SetDefaults(viper.GetViper())
	if err := config.BindEnv(viper.GetViper()); err != nil {
		log.Fatalf("binding environment variables: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-analyzer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("provider", "p", "", "llm provider to use (default is default-provider from the config)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The built-in defaults are enough to run, so only an explicit config file is required.
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			log.Fatal(err)
		}
	}
}

func getConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(providers.Default().Kinds(), cache.Backends()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime bundles everything a command needs to talk to the engine.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *engine.Engine
	store  cache.Store
}

func (r *runtime) close() {
	if closer, ok := r.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("closing cache store", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

// setup builds the logger, configuration, cache store and engine. Errors are fatal.
func setup(ctx context.Context) *runtime {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := getConfig()
	if err != nil {
		logger.Fatal("loading the config", zap.Error(err))
	}

	logger.Debug("starting", zap.String("version", version), zap.Strings("enabled_providers", cfg.EnabledProviders()))

	store, err := cache.New(cfg.Storage)
	if err != nil {
		logger.Warn("cache is unavailable, continuing without it",
			zap.String("backend", cfg.Storage.Backend),
			zap.Error(err),
		)
		store = nil
	}

	eng, err := engine.New(ctx, cfg, providers.Default(), store, viper.GetString("provider"), logger)
	if err != nil {
		logger.Fatal("creating the engine", zap.Error(err),
			zap.String("hint", "enable a provider and set its api key, see `"+app+" config show`"),
		)
	}

	return &runtime{cfg: cfg, logger: logger, engine: eng, store: store}
}
