// Package tags implements the tags command and its subcommands.
package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/common"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/ledger"
	"fjacquet/stmt-ledger/internal/models"

	"github.com/spf13/cobra"
)

var (
	autotagAll    bool
	synonymsFile  string
	csvDelimiter  string
	synonymSource string
)

// Cmd represents the tags command.
var Cmd = &cobra.Command{
	Use:   "tags",
	Short: "Suggest, apply and manage tags",
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <transaction-id>",
	Short: "Show the tags auto-tagging would apply, without applying them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return suggest(cmd.Context(), root.GetContainer(), args[0], root.Flags.Report, cmd.OutOrStdout())
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <transaction-id> <tag>[,<tag>...]...",
	Short: "Tag a transaction manually",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apply(cmd.Context(), root.GetContainer(), root.Owner(), args[0], args[1:], cmd.OutOrStdout())
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <transaction-id> <tag>",
	Short: "Remove a tag from a transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return remove(cmd.Context(), root.GetContainer(), root.Owner(), args[0], args[1], cmd.OutOrStdout())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show a transaction with its tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return show(cmd.Context(), root.GetContainer(), args[0], cmd.OutOrStdout())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tags of the owner with their usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return list(cmd.Context(), root.GetContainer(), root.Owner(), root.Flags.Report, cmd.OutOrStdout())
	},
}

var autotagCmd = &cobra.Command{
	Use:   "autotag --all",
	Short: "Enrich and auto-tag every untagged transaction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !autotagAll {
			return fmt.Errorf("autotag needs --all")
		}
		return autotag(cmd.Context(), root.GetContainer(), root.Owner(), cmd.OutOrStdout())
	},
}

var synonymCmd = &cobra.Command{
	Use:   "synonym [<synonym> <canonical-tag>]",
	Short: "Record that a tag name means another tag",
	Long: `Record that a tag name is a synonym of a canonical tag. New tags with the
synonym's name resolve to the canonical tag. An existing tag with that name
is merged into the canonical tag.

With --file, pairs are read from a CSV file with the columns
synonym,canonical.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if synonymsFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		source := models.SynonymSource(synonymSource)
		if synonymsFile == "" {
			return synonym(cmd.Context(), root.GetContainer(), root.Owner(), args[0], args[1], source, cmd.OutOrStdout())
		}
		delim, err := common.ParseDelimiter(csvDelimiter)
		if err != nil {
			return err
		}
		f, err := os.Open(synonymsFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", synonymsFile, err)
		}
		defer f.Close()
		return synonymsFromCSV(cmd.Context(), root.GetContainer(), root.Owner(), f, delim, source, cmd.OutOrStdout())
	},
}

func init() {
	autotagCmd.Flags().BoolVar(&autotagAll, "all", false, "Process every untagged transaction of the owner")
	synonymCmd.Flags().StringVarP(&synonymsFile, "file", "f", "", "CSV file of synonym,canonical pairs")
	synonymCmd.Flags().StringVar(&csvDelimiter, "delimiter", ",", "Delimiter of the CSV file")
	synonymCmd.Flags().StringVar(&synonymSource, "source", string(models.SynonymManual), "Provenance recorded for the synonyms")

	Cmd.AddCommand(suggestCmd, applyCmd, removeCmd, showCmd, listCmd, autotagCmd, synonymCmd)
}

func suggest(ctx context.Context, c *container.Container, txID, format string, w io.Writer) error {
	proposals, err := c.GetImporter().SuggestTags(ctx, txID)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, proposals)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tCONFIDENCE\tSOURCE\tORIGIN\tRATIONALE")
	for _, p := range proposals {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\n", p.Tag, p.Confidence, p.Source, p.Origin, p.Rationale)
	}
	return tw.Flush()
}

// resolveTags turns tag names into tag ids, creating missing tags.
func resolveTags(ctx context.Context, l *ledger.Ledger, ownerID string, args []string) ([]string, error) {
	var ids []string
	for _, arg := range args {
		for _, name := range ledger.ParseTagNames(arg) {
			tag, err := l.EnsureTag(ctx, ownerID, name)
			if err != nil {
				return nil, err
			}
			ids = append(ids, tag.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no tag names given")
	}
	return ids, nil
}

func apply(ctx context.Context, c *container.Container, ownerID, txID string, names []string, w io.Writer) error {
	if _, _, err := c.GetImporter().Transaction(ctx, txID); err != nil {
		return err
	}
	ids, err := resolveTags(ctx, c.GetLedger(), ownerID, names)
	if err != nil {
		return err
	}
	n, err := c.GetImporter().ApplyTags(ctx, txID, ids)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d tag(s) applied\n", n)
	return err
}

func remove(ctx context.Context, c *container.Container, ownerID, txID, name string, w io.Writer) error {
	canonical, err := c.GetLedger().CanonicalName(ctx, ownerID, name)
	if err != nil {
		return err
	}
	tag, err := c.GetRepository().FindTagByName(ctx, ownerID, canonical)
	if err != nil {
		return fmt.Errorf("unknown tag %s: %w", name, err)
	}
	removed, err := c.GetImporter().RemoveTag(ctx, txID, tag.ID)
	if err != nil {
		return err
	}
	if !removed {
		_, err = fmt.Fprintf(w, "%s was not applied\n", canonical)
		return err
	}
	_, err = fmt.Fprintf(w, "%s removed\n", canonical)
	return err
}

func show(ctx context.Context, c *container.Container, txID string, w io.Writer) error {
	tx, names, err := c.GetImporter().Transaction(ctx, txID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transaction:\t%s\n", tx.ID)
	fmt.Fprintf(tw, "Date:\t%s\n", tx.BookingDate.Format("2006-01-02"))
	fmt.Fprintf(tw, "Title:\t%s\n", tx.Title)
	fmt.Fprintf(tw, "Amount:\t%s\n", tx.Money())
	if tx.HasMerchant() {
		fmt.Fprintf(tw, "Merchant:\t%s (%.2f)\n", tx.NormalizedMerchantName, tx.MerchantConfidence)
	}
	if tx.LocationExtracted != "" {
		fmt.Fprintf(tw, "Location:\t%s\n", tx.LocationExtracted)
	}
	fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(names, ", "))
	return tw.Flush()
}

func list(ctx context.Context, c *container.Container, ownerID, format string, w io.Writer) error {
	tags, err := c.GetRepository().ListTags(ctx, ownerID)
	if err != nil {
		return err
	}
	if format == "json" {
		if tags == nil {
			tags = []models.Tag{}
		}
		return writeJSON(w, tags)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY\tCOLOR\tUSAGE")
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.Name, t.DisplayName, t.Color, t.UsageCount)
	}
	return tw.Flush()
}

func autotag(ctx context.Context, c *container.Container, ownerID string, w io.Writer) error {
	res, err := c.GetImporter().AutoTagAll(ctx, ownerID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d untagged transaction(s): %d enriched, %d tagged, %d tag(s) applied\n",
		res.Transactions, res.Enriched, res.Tagged, res.Links)
	return err
}

func synonym(ctx context.Context, c *container.Container, ownerID, syn, canonicalName string, source models.SynonymSource, w io.Writer) error {
	canonical, err := c.GetLedger().EnsureTag(ctx, ownerID, canonicalName)
	if err != nil {
		return err
	}
	moved, err := c.GetLedger().RecordSynonym(ctx, ownerID, syn, canonical.ID, source, 1.0)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s -> %s (%d link(s) moved)\n", models.NormalizeTagName(syn), canonical.Name, moved)
	return err
}

type synonymRow struct {
	Synonym   string `csv:"synonym"`
	Canonical string `csv:"canonical"`
}

func synonymsFromCSV(ctx context.Context, c *container.Container, ownerID string, r io.Reader, delim rune, source models.SynonymSource, w io.Writer) error {
	rows, err := common.ReadCSV[synonymRow](r, delim)
	if err != nil {
		return err
	}
	for k, row := range rows {
		if err := synonym(ctx, c, ownerID, row.Synonym, row.Canonical, source, w); err != nil {
			return fmt.Errorf("row %d: %w", k+1, err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
