// Package batches implements the batches command.
package batches

import (
	"context"
	"fmt"
	"io"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/container"

	"github.com/spf13/cobra"
)

// Cmd represents the batches command.
var Cmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect import batches",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's import batches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return list(cmd.Context(), root.GetContainer(), root.Owner(), root.Flags.Report, cmd.OutOrStdout())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show one import batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return show(cmd.Context(), root.GetContainer(), root.Owner(), args[0], root.Flags.Report, cmd.OutOrStdout())
	},
}

func init() {
	Cmd.AddCommand(listCmd, showCmd)
}

func list(ctx context.Context, c *container.Container, ownerID, format string, w io.Writer) error {
	bs, err := c.GetRepository().ListBatches(ctx, ownerID)
	if err != nil {
		return err
	}
	out, err := c.GetReportGenerator().Batches(bs, format)
	if err != nil {
		return err
	}
	return root.Print(w, out)
}

func show(ctx context.Context, c *container.Container, ownerID, id, format string, w io.Writer) error {
	b, err := c.GetRepository().GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("batch %s: %w", id, err)
	}
	if b.OwnerID != ownerID {
		return fmt.Errorf("batch %s does not belong to %s", id, ownerID)
	}
	out, err := c.GetReportGenerator().Batch(b, format)
	if err != nil {
		return err
	}
	return root.Print(w, out)
}
