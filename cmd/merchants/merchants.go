// Package merchants implements the merchants command.
package merchants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/textutils"

	"github.com/spf13/cobra"
)

var (
	minCount        int
	patternKind     string
	patternPriority int
)

// Cmd represents the merchants command.
var Cmd = &cobra.Command{
	Use:   "merchants",
	Short: "Inspect merchants and manage their patterns",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known merchants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return list(cmd.Context(), root.GetContainer(), root.Flags.Report, cmd.OutOrStdout())
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show frequent merchants of the owner and whether a pattern covers them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return discover(cmd.Context(), root.GetContainer(), root.Owner(), minCount, root.Flags.Report, cmd.OutOrStdout())
	},
}

var patternCmd = &cobra.Command{
	Use:   "pattern <merchant> <pattern>",
	Short: "Add a title pattern for a merchant",
	Long: `Add a title pattern for a merchant. The merchant is created when it does
not exist. Kinds are exact, substring and regex; on equal priority exact
beats substring beats regex.

Example:
  stmt-ledger merchants pattern biedronka "JERONIMO MARTINS" --kind substring --priority 20`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addPattern(cmd.Context(), root.GetContainer(), args[0], args[1],
			models.PatternKind(patternKind), patternPriority, cmd.OutOrStdout())
	},
}

func init() {
	discoverCmd.Flags().IntVar(&minCount, "min", 3, "Minimum number of transactions")
	patternCmd.Flags().StringVar(&patternKind, "kind", string(models.PatternSubstring), "Pattern kind (exact, substring or regex)")
	patternCmd.Flags().IntVar(&patternPriority, "priority", 10, "Pattern priority, higher wins")

	Cmd.AddCommand(listCmd, discoverCmd, patternCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func list(ctx context.Context, c *container.Container, format string, w io.Writer) error {
	merchants, err := c.GetRepository().ListMerchants(ctx)
	if err != nil {
		return err
	}
	if format == "json" {
		if merchants == nil {
			merchants = []models.Merchant{}
		}
		return writeJSON(w, merchants)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY\tCATEGORY")
	for _, m := range merchants {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.NormalizedName, m.DisplayName, m.Category)
	}
	return tw.Flush()
}

func discover(ctx context.Context, c *container.Container, ownerID string, atLeast int, format string, w io.Writer) error {
	usage, err := c.GetRepository().MerchantUsage(ctx, ownerID, atLeast)
	if err != nil {
		return err
	}
	if format == "json" {
		if usage == nil {
			usage = []models.MerchantUsage{}
		}
		return writeJSON(w, usage)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MERCHANT\tTRANSACTIONS\tPATTERN")
	for _, u := range usage {
		pattern := "no"
		if u.HasPattern {
			pattern = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", u.NormalizedName, u.TransactionCount, pattern)
	}
	return tw.Flush()
}

func addPattern(ctx context.Context, c *container.Container, name, pattern string, kind models.PatternKind, priority int, w io.Writer) error {
	normalized := textutils.Fold(name)
	if normalized == "" {
		return fmt.Errorf("merchant name must not be empty")
	}

	repo := c.GetRepository()
	m, err := repo.FindMerchantByName(ctx, normalized)
	if errors.Is(err, repository.ErrNotFound) {
		m, _, err = repo.EnsureMerchant(ctx, &models.Merchant{
			NormalizedName: normalized,
			DisplayName:    textutils.TitleCase(name),
		})
	}
	if err != nil {
		return fmt.Errorf("failed to resolve merchant %s: %w", name, err)
	}

	p := &models.MerchantPattern{MerchantID: m.ID, Kind: kind, Pattern: pattern, Priority: priority}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.GetExtractor().AddPattern(ctx, p); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s pattern %q added to %s\n", kind, p.Pattern, m.NormalizedName)
	return err
}
