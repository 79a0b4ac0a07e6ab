// Package export implements the export command.
package export

import (
	"context"
	"io"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/common"
	"fjacquet/stmt-ledger/internal/container"

	"github.com/spf13/cobra"
)

var (
	outputFile string
	delimiter  string
)

// Cmd represents the export command.
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export the owner's transactions with merchants and tags as CSV",
	Long: `Export every transaction of the owner, enriched with its merchant,
location and tag names, as CSV. Without --output the CSV goes to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := root.GetContainer()
		delim := delimiter
		if delim == "" {
			delim = c.GetConfig().Export.Delimiter
		}
		return run(cmd.Context(), c, root.Owner(), outputFile, delim, cmd.OutOrStdout())
	},
}

func init() {
	Cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output CSV file")
	Cmd.Flags().StringVar(&delimiter, "delimiter", "", "Column delimiter, \"tab\" for tabs (default from config)")
}

func run(ctx context.Context, c *container.Container, ownerID, path, delim string, w io.Writer) error {
	sep, err := common.ParseDelimiter(delim)
	if err != nil {
		return err
	}
	rows, err := common.ExportRows(ctx, c.GetRepository(), c.GetLedger(), ownerID)
	if err != nil {
		return err
	}
	if path == "" {
		return common.WriteTransactionsCSV(w, rows, sep)
	}
	return common.WriteTransactionsCSVFile(path, rows, sep, c.GetLogger())
}
