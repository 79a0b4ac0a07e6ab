// Package importcmd implements the import command.
package importcmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/batch"
	"fjacquet/stmt-ledger/internal/container"

	"github.com/spf13/cobra"
)

// Cmd represents the import command.
var Cmd = &cobra.Command{
	Use:   "import <file|dir>...",
	Short: "Import statement files",
	Long: `Import one or more mBank statement files. A directory imports every
.csv and .txt file directly inside it. Each file becomes its own import
batch; a file imported before is reported as a duplicate and changes nothing.

Example:
  stmt-ledger import statements/2025-08.csv
  stmt-ledger --owner anna import statements/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), root.GetContainer(), root.Owner(), root.Flags.Report, args, cmd.OutOrStdout())
	},
}

// jobs expands the arguments into one job per statement file.
func jobs(ownerID string, args []string) ([]batch.Job, error) {
	var out []batch.Job
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot import %s: %w", arg, err)
		}
		if !info.IsDir() {
			out = append(out, batch.Job{Owner: ownerID, Path: arg})
			continue
		}
		files, err := batch.StatementFiles(arg)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			out = append(out, batch.Job{Owner: ownerID, Path: f})
		}
	}
	return out, nil
}

func run(ctx context.Context, c *container.Container, ownerID, format string, args []string, w io.Writer) error {
	js, err := jobs(ownerID, args)
	if err != nil {
		return err
	}
	if len(js) == 0 {
		return fmt.Errorf("no statement files found")
	}

	results, runErr := c.GetRunner().Run(ctx, js)
	out, err := c.GetReportGenerator().Run(results, format)
	if err != nil {
		return err
	}
	if err := root.Print(w, out); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if t := batch.Summarize(results); t.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", t.Failed, t.Files)
	}
	return nil
}
