package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/depgraph"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		manifestPath string
		format       string
		output       string
		detailed     bool
	)

	cmd := &cobra.Command{
		Use:   "graph [uid|url]...",
		Short: "Export the dependency graph of mods",
		Long: `Graph resolves the given mods and writes their dependency graph as Graphviz
DOT or rendered SVG. Stubs are drawn dashed and references that form a cycle
are drawn red.`,
		Example: `  quickmod graph jei -o jei.dot
  quickmod graph -f modpack.toml --format svg -o modpack.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatDOT && format != formatSVG {
				return qerrors.New(qerrors.ErrCodeInvalidInput, "unknown format %q (want %s or %s)", format, formatDOT, formatSVG)
			}
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

			res, err := c.resolve(ctx, ws, seeds, false)
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				printWarning("%s", f.Error())
			}

			dot := depgraph.ToDOT(res.Graph, depgraph.Options{Detailed: detailed})
			data := []byte(dot)
			if format == formatSVG {
				if data, err = depgraph.RenderSVG(ctx, dot); err != nil {
					return err
				}
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Wrote %d mods, %d references", res.Graph.NodeCount(), res.Graph.EdgeCount())
			printPath(output)
			if cycles := res.Graph.Cycles(); len(cycles) > 0 {
				printDetail("%d reference cycles", len(cycles))
			}
			if format == formatDOT {
				printNextStep("Render it", "dot -Tsvg "+output)
			}
			return nil
		},
	}

	cmd.ValidArgsFunction = c.completeUIDs
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "modpack manifest (modpack.toml or modpack.yaml)")
	cmd.Flags().StringVar(&format, "format", formatDOT, "output format (dot, svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with name and type")

	return cmd
}
