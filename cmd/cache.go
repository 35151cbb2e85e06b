package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/qiprof/internal/pipeline"
	"github.com/theirongolddev/qiprof/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the summary cache",
	RunE:  runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached summary",
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove summaries of traces that no longer exist",
	RunE:  runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*store.Cache, error) {
	c, err := store.Open(pipeline.CachePath())
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

func runCacheInfo(_ *cobra.Command, _ []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Count()
	if err != nil {
		return err
	}
	path := pipeline.CachePath()
	fmt.Printf("  Cache:     %s\n", path)
	if info, err := os.Stat(path); err == nil {
		fmt.Printf("  Size:      %s\n", humanize.IBytes(uint64(info.Size())))
	}
	fmt.Printf("  Summaries: %d\n", n)
	return nil
}

func runCacheClear(_ *cobra.Command, _ []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Count()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return err
	}
	fmt.Printf("  Removed %d cached summaries\n", n)
	return nil
}

func runCachePrune(_ *cobra.Command, _ []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	tracked, err := c.Tracked()
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(tracked))
	for path := range tracked {
		if _, err := os.Stat(path); err == nil {
			keep[path] = struct{}{}
		}
	}
	removed, err := c.Prune(keep)
	if err != nil {
		return err
	}
	fmt.Printf("  Pruned %d of %d cached summaries\n", removed, len(tracked))
	return nil
}
