package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/output"
	"github.com/agritutor/agritutor/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the model response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cached responses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, db *store.Store, _ output.Formatter) error {
			removed, err := pruneCache(ctx, db)
			metrics.RecordCommand("cache-prune", err == nil)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired response(s)\n", removed)
			return err
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, db *store.Store, formatter output.Formatter) error {
			return writeCacheStats(ctx, cmd.OutOrStdout(), formatter, db)
		})
	},
}

var cacheClearLimits bool

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	Long: `Delete every cached response.

With --rate-limits, provider request windows and 429 backoffs recorded in
the same database are forgotten too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, db *store.Store, _ output.Formatter) error {
			removed, err := db.ClearResponses(ctx)
			metrics.RecordCommand("cache-clear", err == nil)
			if err != nil {
				return err
			}
			metrics.RecordCachePrune(removed, 0)
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached response(s)\n", removed); err != nil {
				return err
			}
			if !cacheClearLimits {
				return nil
			}
			reset, err := db.ResetRateLimits(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Reset %d provider rate limit(s)\n", reset)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd, cacheStatsCmd, cacheClearCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearLimits, "rate-limits", false, "also reset provider rate limit state")
}

func withStore(cmd *cobra.Command, fn func(context.Context, *store.Store, output.Formatter) error) error {
	formatter, err := currentFormatter()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openStore(ctx, nil)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	return fn(ctx, db, formatter)
}

// pruneCache removes expired rows and records what is left.
func pruneCache(ctx context.Context, db *store.Store) (int64, error) {
	removed, err := db.PruneExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune response cache: %w", err)
	}
	stats, err := db.CacheStats(ctx)
	if err != nil {
		logger().Warn("Cannot read cache stats after prune", zap.Error(err))
		return removed, nil
	}
	metrics.RecordCachePrune(removed, stats.Entries)
	return removed, nil
}

func writeCacheStats(ctx context.Context, w io.Writer, formatter output.Formatter, db *store.Store) error {
	stats, err := db.CacheStats(ctx)
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}
	rendered, err := formatter.FormatCacheStats(stats)
	return render(w, rendered, err)
}
