package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the HTTP response cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached HTTP responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := c.fileCache()
			if err != nil {
				return err
			}
			defer fc.Close()

			count, err := fc.Clear()
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}

			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", fc.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.Config.Cache.Dir)
			return nil
		},
	}
}

// fileCache opens the configured file cache. Remote backends manage
// expiry themselves and cannot be cleared from here.
func (c *CLI) fileCache() (*cache.FileCache, error) {
	switch c.Config.Cache.Backend {
	case "", cache.BackendFile:
		return cache.NewFileCache(c.Config.Cache.Dir)
	default:
		return nil, qerrors.New(qerrors.ErrCodeUnsupported, "cache backend %q cannot be cleared locally", c.Config.Cache.Backend)
	}
}
