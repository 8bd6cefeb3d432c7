package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quickmod/internal/config"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for your shell. Besides commands and flags,
the scripts complete mod uids from the local descriptor store for resolve,
install, graph and store show.

  bash:        source <(quickmod completion bash)
  zsh:         quickmod completion zsh > "${fpath[1]}/_quickmod"
  fish:        quickmod completion fish > ~/.config/fish/completions/quickmod.fish
  powershell:  quickmod completion powershell | Out-String | Invoke-Expression

Run "quickmod store update" first if uids are missing.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}

// completeUIDs completes mod uids from the descriptor store. Completion runs
// without the persistent pre-run, so the configuration is read here.
func (c *CLI) completeUIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dir := c.storeDir
	if dir == "" {
		cfg, _, err := config.Load(ctx, config.LoadOptions{File: c.configFile})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		dir = cfg.Store.Dir
	}
	return storedUIDs(dir, toComplete, args), cobra.ShellCompDirectiveNoFileComp
}

// storedUIDs lists the uids persisted in dir that start with prefix, leaving
// out those in given.
func storedUIDs(dir, prefix string, given []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var uids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		uid := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(uid, prefix) && !slices.Contains(given, uid) {
			uids = append(uids, uid)
		}
	}
	return uids
}
