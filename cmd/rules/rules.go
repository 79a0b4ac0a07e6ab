// Package rules implements the rules command.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/ledger"
	"fjacquet/stmt-ledger/internal/models"

	"github.com/spf13/cobra"
)

// ruleFlags are the options of rules add.
type ruleFlags struct {
	Name          string
	Description   string
	Priority      int
	Condition     string
	ConditionFile string
	Tags          string
	Confidence    float64
}

var (
	addFlags ruleFlags
	showAll  bool
)

// Cmd represents the rules command.
var Cmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage tagging rules",
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tagging rule",
	Long: `Add a tagging rule. The condition is a YAML or JSON document built from
leaves {field, op, value|min|max} combined with all and any.

Example:
  stmt-ledger rules add --name coffee --tags coffee,eating-out \
    --condition '{all: [{field: title, op: contains, value: kawiarnia}, {field: abs_amount, op: lt, value: "40"}]}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := addFlags
		if f.ConditionFile != "" {
			doc, err := os.ReadFile(f.ConditionFile)
			if err != nil {
				return fmt.Errorf("failed to read condition: %w", err)
			}
			f.Condition = string(doc)
		}
		return add(cmd.Context(), root.GetContainer(), root.Owner(), f, cmd.OutOrStdout())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tagging rules by evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return list(cmd.Context(), root.GetContainer(), root.Owner(), !showAll, root.Flags.Report, cmd.OutOrStdout())
	},
}

func init() {
	fs := addCmd.Flags()
	fs.StringVar(&addFlags.Name, "name", "", "Rule name")
	fs.StringVar(&addFlags.Description, "description", "", "Free text description")
	fs.IntVar(&addFlags.Priority, "priority", 0, "Higher priorities are evaluated first")
	fs.StringVar(&addFlags.Condition, "condition", "", "Condition document")
	fs.StringVar(&addFlags.ConditionFile, "condition-file", "", "File holding the condition document")
	fs.StringVar(&addFlags.Tags, "tags", "", "Comma separated tags the rule applies")
	fs.Float64Var(&addFlags.Confidence, "confidence", models.DefaultRuleConfidence, "Confidence of the proposed tags")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("tags")
	addCmd.MarkFlagsOneRequired("condition", "condition-file")
	addCmd.MarkFlagsMutuallyExclusive("condition", "condition-file")

	listCmd.Flags().BoolVar(&showAll, "all", false, "Include inactive rules")

	Cmd.AddCommand(addCmd, listCmd)
}

func add(ctx context.Context, c *container.Container, ownerID string, f ruleFlags, w io.Writer) error {
	r := &models.TaggingRule{
		OwnerID:     ownerID,
		Name:        f.Name,
		Description: f.Description,
		Priority:    f.Priority,
		Condition:   f.Condition,
		Confidence:  f.Confidence,
	}
	if err := c.GetEngine().SaveRule(ctx, r, ledger.ParseTagNames(f.Tags)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Rule %s saved (%s)\n", r.Name, r.ID)
	return err
}

func list(ctx context.Context, c *container.Container, ownerID string, activeOnly bool, format string, w io.Writer) error {
	rules, err := c.GetRepository().ListRules(ctx, ownerID, activeOnly)
	if err != nil {
		return err
	}
	if format == "json" {
		if rules == nil {
			rules = []models.TaggingRule{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tNAME\tCONFIDENCE\tACTIVE\tTAGS\tCONDITION")
	for _, r := range rules {
		names := make([]string, 0, len(r.TagIDs))
		for _, id := range r.TagIDs {
			tag, err := c.GetRepository().GetTag(ctx, id)
			if err != nil {
				return fmt.Errorf("rule %s: %w", r.Name, err)
			}
			names = append(names, tag.Name)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%t\t%s\t%s\n", r.Priority, r.Name, r.Confidence, r.IsActive,
			strings.Join(names, ","), oneLine(r.Condition))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
