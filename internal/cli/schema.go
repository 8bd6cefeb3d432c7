package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/quickmod/pkg/quickmod"
)

// schemaCommand prints the JSON schema of descriptor files.
func (c *CLI) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of descriptor files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := out.Write(quickmod.SchemaJSON()); err != nil {
				return err
			}
			_, err := out.Write([]byte("\n"))
			return err
		},
	}
}
