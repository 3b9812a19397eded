package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stefanw/photosort/internal/cache"
	"github.com/stefanw/photosort/internal/util"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the metadata cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache file statistics",
	Long: `Stats loads the cache file read-only and reports its record count,
on-disk size, legacy records and secondary-index collisions.`,
	RunE: runCacheStats,
}

func init() {
	cacheCmd.PersistentFlags().String("cache-file", "photosort-cache.gz", "cache file location")
	viper.BindPFlag("cache.file", cacheCmd.PersistentFlags().Lookup("cache-file"))

	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	// Build every index so collisions are visible
	store := cache.New(&cache.Config{
		Enabled:  true,
		Path:     viper.GetString("cache.file"),
		Strategy: cache.Strategy{UseHash: true, UseRelPath: true},
	})
	if err := store.Load(); err != nil {
		return fmt.Errorf("cannot load cache: %w", err)
	}

	stats := store.Stats()
	fmt.Printf("Cache file:      %s\n", viper.GetString("cache.file"))
	fmt.Printf("Records:         %d\n", store.Len())
	fmt.Printf("Compressed size: %s\n", humanize.IBytes(uint64(stats.SizeOnLoad)))
	if stats.LegacyUpgraded > 0 {
		fmt.Printf("Legacy records:  %d (will be upgraded on next save)\n", stats.LegacyUpgraded)
	}
	if stats.CorruptDropped > 0 {
		fmt.Printf("Corrupt dropped: %d\n", stats.CorruptDropped)
	}
	if stats.HashCollisions > 0 || stats.RelPathCollisions > 0 {
		fmt.Printf("Collisions:      %d hash, %d relpath\n", stats.HashCollisions, stats.RelPathCollisions)
	}
	return nil
}
