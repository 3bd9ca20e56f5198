package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage cached llm results",
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		Run: func(_ *cobra.Command, _ []string) {
			clearCache()
		},
	}

	cacheDeleteCmd = &cobra.Command{
		Use:   "delete KEY...",
		Short: "Remove cached results by key",
		Args:  cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			deleteCacheEntries(args)
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheDeleteCmd)
	rootCmd.AddCommand(cacheCmd)
}

func clearCache() {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	if err := rt.engine.ClearCache(ctx); err != nil {
		rt.logger.Fatal("clearing cache", zap.Error(err))
	}
	rt.logger.Info("cache cleared", zap.String("backend", rt.cfg.Storage.Backend))
}

func deleteCacheEntries(keys []string) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	for _, key := range keys {
		deleted, err := rt.engine.DeleteCacheEntry(ctx, key)
		if err != nil {
			rt.logger.Fatal("deleting cache entry", zap.String("key", key), zap.Error(err))
		}
		rt.logger.Info("cache entry", zap.String("key", key), zap.Bool("deleted", deleted))
	}
}
