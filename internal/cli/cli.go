package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/quickmod/internal/config"
	"github.com/matzehuels/quickmod/pkg/buildinfo"
	"github.com/matzehuels/quickmod/pkg/cache"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const appName = "quickmod"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded before any subcommand runs.
	Config *config.Config

	configFile  string
	gameVersion string
	storeDir    string
	cacheKind   string
	noCache     bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "quickmod resolves and downloads Minecraft mods with their dependencies",
		Long:         `quickmod reads QuickMod descriptor files, resolves the transitive dependencies of the mods you ask for and downloads one version of each.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default: "+config.FileName+" in the user config directory)")
	flags.StringVar(&c.gameVersion, "game-version", "", "only consider versions compatible with this game version")
	flags.StringVar(&c.storeDir, "store", "", "descriptor store directory")
	flags.StringVar(&c.cacheKind, "cache", "", "response cache backend (file, redis, mongo, none)")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the response cache")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.schemaCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configuration and applies flag overrides.
func (c *CLI) loadConfig(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if c.gameVersion != "" {
		overrides["game.version"] = c.gameVersion
	}
	if c.storeDir != "" {
		overrides["store.dir"] = c.storeDir
	}
	if c.cacheKind != "" {
		overrides["cache.backend"] = c.cacheKind
	}
	if c.noCache {
		overrides["cache.backend"] = cache.BackendNone
	}

	cfg, path, err := config.Load(cmd.Context(), config.LoadOptions{File: c.configFile, Overrides: overrides})
	if err != nil {
		return err
	}
	c.SetLogLevel(chooseLevel(c.Logger.GetLevel(), cfg.Log.Level))
	if path != "" {
		c.Logger.Debug("config loaded", "path", path)
	}
	c.Config = cfg
	return nil
}

// =============================================================================
// Workspace
// =============================================================================

// workspace bundles the components a command works with.
type workspace struct {
	cache  cache.Cache
	client *fetch.Client
	store  *store.Store
}

// open builds the response cache, HTTP client and descriptor store from the
// configuration and loads the store from disk.
func (c *CLI) open(ctx context.Context) (*workspace, error) {
	responses, err := cache.Open(ctx, c.Config.CacheOptions())
	if err != nil {
		c.Logger.Warn("response cache unavailable, continuing without", "backend", c.Config.Cache.Backend, "error", err)
		responses = cache.NewNullCache()
	}

	opts := c.Config.FetchOptions(responses)
	opts.Logger = c.Logger
	client := fetch.New(opts)

	s, err := store.New(c.Config.Store.Dir, client, store.Options{Logger: c.Logger})
	if err != nil {
		responses.Close()
		return nil, err
	}
	n, err := s.Load()
	if err != nil {
		c.Logger.Warn("some descriptors could not be loaded", "error", err)
	}
	c.Logger.Debug("store loaded", "dir", s.Dir(), "descriptors", n)

	return &workspace{cache: responses, client: client, store: s}, nil
}

func (w *workspace) Close() error {
	return errors.Join(w.store.Close(), w.cache.Close())
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			return nil
		},
	}
}
