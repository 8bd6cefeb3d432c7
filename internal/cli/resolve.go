package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/manifest"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var manifestPath string
	var failFast bool

	cmd := &cobra.Command{
		Use:   "resolve [uid|url]...",
		Short: "Resolve the transitive dependencies of mods",
		Long: `Resolve fetches the descriptors of the given mods and of everything they
reference, storing them in the local descriptor store.

Mods are given as uids of stored descriptors or as descriptor URLs, on the
command line or in a modpack manifest (modpack.toml or modpack.yaml).`,
		Example: `  quickmod resolve https://quickmods.example.com/jei.json
  quickmod resolve -f modpack.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			seeds, err := c.seeds(args, manifestPath)
			if err != nil {
				return err
			}

			ws, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			res, err := c.resolve(ctx, ws, seeds, failFast)
			if err != nil {
				return err
			}

			printResolution(res, install.LatestSelector{GameVersion: c.Config.Game.Version})
			if len(res.Mods) > 0 {
				printNewline()
				next := append([]string{"quickmod", "install"}, args...)
				if manifestPath != "" {
					next = append(next, "-f", manifestPath)
				}
				printNextStep("Download them", strings.Join(next, " "))
			}
			return res.Err()
		},
	}

	cmd.ValidArgsFunction = c.completeUIDs
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "modpack manifest (modpack.toml or modpack.yaml)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first descriptor that cannot be resolved")

	return cmd
}

// seeds collects resolution seeds from arguments and an optional manifest.
// A manifest's game version applies unless one is configured.
func (c *CLI) seeds(args []string, manifestPath string) ([]resolve.Seed, error) {
	seeds, err := manifest.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if manifestPath != "" {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, m.Seeds()...)
		if m.GameVersion != "" && c.Config.Game.Version == "" {
			c.Config.Game.Version = m.GameVersion
		}
		c.Logger.Debug("manifest loaded", "path", manifestPath, "name", m.Name, "mods", len(m.Mods))
	}
	if len(seeds) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeInvalidInput, "no mods given: pass uids, urls or --file")
	}
	return seeds, nil
}

// resolve runs one resolution behind a spinner.
func (c *CLI) resolve(ctx context.Context, ws *workspace, seeds []resolve.Seed, failFast bool) (*resolve.Result, error) {
	sw := startStopwatch(c.Logger)
	spin := newSpinner(ctx, "Resolving dependencies")

	res, err := resolve.New(ws.store, c.Logger).Resolve(ctx, seeds, resolve.Options{
		FailFast:   failFast,
		OnProgress: spin.setPercent,
	})
	spin.finish()
	if err != nil {
		return nil, err
	}
	sw.done("resolved", "mods", len(res.Mods), "fetches", res.Fetches)
	return res, nil
}

// printResolution prints the resolved mods as a table followed by failures.
func printResolution(res *resolve.Result, sel install.Selector) {
	rows := make([][]string, 0, len(res.Mods))
	for _, m := range res.Mods {
		latest := "-"
		if v, ok := sel.Select(m); ok {
			latest = v.Name
		}
		rows = append(rows, []string{string(m.UID), m.Name, typeName(m), strconv.Itoa(len(m.Versions)), latest})
	}
	if len(rows) > 0 {
		fmt.Println(modTable([]string{"UID", "Name", "Type", "Versions", "Selected"}, rows))
	}
	for _, f := range res.Failures {
		printError("%s", f.Error())
	}
	fmt.Println(resolutionStats(res))
}

func typeName(m *quickmod.Mod) string {
	if m.Type == "" {
		return string(quickmod.TypeForgeMod)
	}
	return string(m.Type)
}

// modTable renders rows in the table style shared by all listings.
func modTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 0:
				return StyleHighlight
			default:
				return lipgloss.NewStyle().Foreground(colorWhite)
			}
		}).
		Render()
}
