package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		manifestPath string
		dir          string
		yes          bool
		useTUI       bool
		failFast     bool
	)

	cmd := &cobra.Command{
		Use:   "install [uid|url]...",
		Short: "Resolve and download mods with their dependencies",
		Long: `Install resolves the given mods, picks the newest version of every mod in
the dependency set that is compatible with the configured game version and
downloads it to <downloads>/<uid>/.

Versions marked as cached are used in place; versions behind a download page
are fetched by following the page's download link.`,
		Example: `  quickmod install jei --game-version 1.7.10
  quickmod install -f modpack.toml --yes --tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			seeds, err := c.seeds(args, manifestPath)
			if err != nil {
				return err
			}
			if dir != "" {
				c.Config.Downloads.Dir = dir
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
			sel := install.LatestSelector{GameVersion: c.Config.Game.Version}
			printResolution(res, sel)
			if len(res.Failures) > 0 && failFast {
				return res.Err()
			}

			if !yes {
				ok, err := confirm(fmt.Sprintf("Download %d mods to %s?", len(res.Mods), c.Config.Downloads.Dir))
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Nothing downloaded")
					return nil
				}
			}

			opts := install.Options{
				Dir:        c.Config.Downloads.Dir,
				Selector:   sel,
				Downloader: ws.client,
				Navigator:  &install.HTMLNavigator{Fetcher: ws.client, Downloader: ws.client, Logger: c.Logger},
				Logger:     c.Logger,
			}
			resolver := resolve.New(ws.store, c.Logger)

			var report *install.Report
			if useTUI {
				report, err = runInstallTUI(ctx, resolver, opts, res.Mods)
			} else {
				opts.OnStatus = printStatus
				report, err = install.New(resolver, opts).Run(ctx, res.Mods)
			}
			if err != nil {
				return err
			}
			printInstallSummary(report, c.Config.Downloads.Dir)
			return report.Err()
		},
	}

	cmd.ValidArgsFunction = c.completeUIDs
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "modpack manifest (modpack.toml or modpack.yaml)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "download directory (default from config)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show an interactive progress view")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "do not download anything if a descriptor cannot be resolved")

	return cmd
}

// confirm asks a yes/no question on the terminal.
func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Download").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func printInstallSummary(r *install.Report, dir string) {
	printNewline()
	for _, uid := range r.Skipped {
		printDetail("%s: nothing to download", uid)
	}
	completed, failed := len(r.Completed()), len(r.Failed())
	if failed == 0 {
		printSuccess("Downloaded %d mods", completed)
	} else {
		printWarning("Downloaded %d of %d mods", completed, completed+failed)
	}
	printPath(dir)
}

// runInstallTUI runs the orchestration behind the bubbletea progress view.
// Quitting the view cancels the run.
func runInstallTUI(ctx context.Context, r install.Resolver, opts install.Options, mods []*quickmod.Mod) (*install.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := newInstallProgram(ctx, len(mods))
	opts.OnStatus = func(ev install.StatusEvent) { p.Send(statusMsg(ev)) }

	go func() {
		report, err := install.New(r, opts).Run(ctx, mods)
		p.Send(installDoneMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(installModel)
	if !m.done {
		return nil, qerrors.New(qerrors.ErrCodeCanceled, "install canceled")
	}
	return m.report, m.err
}
