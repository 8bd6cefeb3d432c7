package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/glamour"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/store"
)

// localModPattern matches mod files in a game instance's mods directory.
const localModPattern = "**/*.{jar,zip,litemod}"

// storeCommand creates the descriptor store command.
func (c *CLI) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain the local descriptor store",
	}

	cmd.AddCommand(c.storeListCommand())
	cmd.AddCommand(c.storeSearchCommand())
	cmd.AddCommand(c.storeShowCommand())
	cmd.AddCommand(c.storeUpdateCommand())
	cmd.AddCommand(c.storeScanCommand())
	cmd.AddCommand(c.storePathCommand())

	return cmd
}

func (c *CLI) storeListCommand() *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored descriptors",
		Example: `  quickmod store list
  quickmod store list --match 'forge*'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if match != "" && !doublestar.ValidatePattern(match) {
				return qerrors.New(qerrors.ErrCodeInvalidInput, "invalid pattern %q", match)
			}
			ws, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			mods := filterMods(ws.store.All(), match)
			if len(mods) == 0 {
				printInfo("No descriptors stored")
				return nil
			}
			fmt.Println(storeTable(mods))
			return nil
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "only list uids matching this glob")
	return cmd
}

// filterMods keeps the mods whose uid matches a doublestar glob.
// An empty pattern keeps everything.
func filterMods(mods []*quickmod.Mod, pattern string) []*quickmod.Mod {
	if pattern == "" {
		return mods
	}
	var out []*quickmod.Mod
	for _, m := range mods {
		if ok, _ := doublestar.Match(pattern, string(m.UID)); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *CLI) storeSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search stored descriptors by uid and name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			mods := searchMods(ws.store.All(), args[0])
			if len(mods) == 0 {
				printInfo("No descriptors match %q", args[0])
				return nil
			}
			fmt.Println(storeTable(mods))
			return nil
		},
	}
}

// modSource adapts a mod list to fuzzy.Source, matching on "uid name".
type modSource []*quickmod.Mod

func (s modSource) String(i int) string { return string(s[i].UID) + " " + s[i].Name }
func (s modSource) Len() int            { return len(s) }

// searchMods returns the mods matching query, best match first.
func searchMods(mods []*quickmod.Mod, query string) []*quickmod.Mod {
	matches := fuzzy.FindFrom(query, modSource(mods))
	out := make([]*quickmod.Mod, len(matches))
	for i, m := range matches {
		out[i] = mods[m.Index]
	}
	return out
}

func storeTable(mods []*quickmod.Mod) string {
	rows := make([][]string, len(mods))
	for i, m := range mods {
		status := "resolved"
		if m.IsStub() {
			status = "stub"
		}
		rows[i] = []string{string(m.UID), m.Name, typeName(m), strconv.Itoa(len(m.Versions)), status}
	}
	return modTable([]string{"UID", "Name", "Type", "Versions", "Status"}, rows)
}

func (c *CLI) storeShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Show a stored descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			uid := quickmod.UID(args[0])
			m, ok := ws.store.Lookup(uid)
			if !ok {
				return qerrors.New(qerrors.ErrCodeNotFound, "no descriptor for %s in %s", uid, ws.store.Dir())
			}
			printMod(m)
			return nil
		},
	}
	cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return c.completeUIDs(cmd, args, toComplete)
	}
	return cmd
}

func printMod(m *quickmod.Mod) {
	fmt.Println(StyleTitle.Render(m.Name))
	printField("UID", string(m.UID))
	if m.ModID != "" {
		printField("Mod ID", m.ModID)
	}
	printField("Type", typeName(m))
	if m.WebsiteURL != "" {
		printField("Website", StyleLink.Render(m.WebsiteURL))
	}
	if m.UpdateURL != "" {
		printField("Update URL", StyleLink.Render(m.UpdateURL))
	}
	if m.IsStub() {
		printField("Status", StyleWarning.Render("stub"))
	}

	if m.Description != "" {
		printNewline()
		fmt.Print(renderMarkdown(m.Description, 80))
	}

	if refs := m.ReferencedUIDs(); len(refs) > 0 {
		printNewline()
		fmt.Println(StyleTitle.Render("References"))
		for _, uid := range refs {
			printDetail("%s %s %s", uid, iconArrow, m.References[uid])
		}
	}

	if len(m.Versions) > 0 {
		printNewline()
		rows := make([][]string, len(m.Versions))
		for i, v := range m.Versions {
			rows[i] = []string{v.Name, string(v.EffectiveMethod()), strings.Join(v.MCCompat, ", "), v.URL + v.CachedPath}
		}
		fmt.Println(modTable([]string{"Version", "Method", "Game versions", "Location"}, rows))
	}
}

// renderMarkdown renders a description for the terminal, falling back to
// the raw text if the renderer fails.
func renderMarkdown(text string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (c *CLI) storeUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refetch every stored descriptor from its update URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			var failures atomic.Int32
			unsubscribe := ws.store.Errors().Subscribe(func(e *store.Error) {
				failures.Add(1)
				c.Logger.Warn("update failed", "url", e.Locator, "error", e.Err)
			})
			defer unsubscribe()

			sw := startStopwatch(c.Logger)
			spin := newSpinner(ctx, "Updating descriptors")
			n, err := ws.store.Update(ctx)
			spin.finish()
			if qerrors.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			sw.done("descriptors refetched", "count", n)
			if k := failures.Load(); k > 0 {
				printWarning("%d descriptors could not be updated", k)
			}
			return err
		},
	}
}

func (c *CLI) storeScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <mods-dir>",
		Short: "Create stub descriptors for the mod files in a directory",
		Long: `Scan reads the mcmod.info metadata of every mod file below a directory and
records a stub descriptor for each mod the store does not know yet. Stubs are
replaced by the real descriptor as soon as it is resolved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			paths, err := findLocalMods(args[0])
			if err != nil {
				return err
			}
			added := 0
			for _, p := range paths {
				local, err := quickmod.ReadLocalMod(p)
				if err != nil {
					c.Logger.Warn("skipping mod file", "path", p, "error", err)
					continue
				}
				m, err := ws.store.EnsureStub(local)
				if err != nil {
					c.Logger.Warn("cannot record mod", "path", p, "error", err)
					continue
				}
				if m.IsStub() {
					added++
				}
				c.Logger.Debug("scanned", "path", p, "uid", m.UID, "stub", m.IsStub())
			}
			printSuccess("Scanned %d mod files, %d stubs", len(paths), added)
			return nil
		},
	}
}

// findLocalMods returns the mod files below dir in lexical order.
func findLocalMods(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "."); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeInvalidInput, err, "mods directory %s", dir)
	}
	matches, err := doublestar.Glob(fsys, localModPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	slices.Sort(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return paths, nil
}

func (c *CLI) storePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the descriptor store directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.Config.Store.Dir)
			return nil
		},
	}
}
