// Package report renders import batch results for the command line.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"fjacquet/stmt-ledger/internal/batch"
	"fjacquet/stmt-ledger/internal/dateutils"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Generator renders batches as text or JSON.
type Generator struct {
	logger logging.Logger
}

// NewGenerator returns a Generator.
func NewGenerator(logger logging.Logger) *Generator {
	return &Generator{logger: logger}
}

// Batch renders one batch result.
func (g *Generator) Batch(b *models.ImportBatch, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return g.json(b)
	case FormatText, "":
		var buf bytes.Buffer
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		line := func(k string, v any) { fmt.Fprintf(w, "%s:\t%v\n", k, v) }
		line("Batch", batchID(b))
		line("File", b.FileName)
		line("Status", b.Status)
		if b.AccountNumber != "" {
			line("Account", b.AccountNumber)
		}
		if !b.PeriodStart.IsZero() {
			line("Period", period(b))
		}
		line("Imported", b.TransactionsImported)
		line("Duplicates", b.DuplicatesSkipped)
		line("Failed rows", b.RowsFailed)
		if b.ErrorMessage != "" {
			line("Message", b.ErrorMessage)
		}
		if err := w.Flush(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// Batches renders a list of batches, one per line in text form.
func (g *Generator) Batches(bs []models.ImportBatch, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		if bs == nil {
			bs = []models.ImportBatch{}
		}
		return g.json(bs)
	case FormatText, "":
		var buf bytes.Buffer
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tSTATUS\tPERIOD\tIMPORTED\tDUPLICATES\tFAILED")
		for k := range bs {
			b := &bs[k]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				b.ID, b.FileName, b.Status, period(b),
				b.TransactionsImported, b.DuplicatesSkipped, b.RowsFailed)
		}
		if err := w.Flush(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

type runReport struct {
	Totals batch.Totals   `json:"totals"`
	Files  []runFileEntry `json:"files"`
}

type runFileEntry struct {
	File  string              `json:"file"`
	Batch *models.ImportBatch `json:"batch,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Run renders the results of a directory import with their totals.
func (g *Generator) Run(results []batch.FileResult, format string) ([]byte, error) {
	totals := batch.Summarize(results)
	switch format {
	case FormatJSON:
		rep := runReport{Totals: totals, Files: make([]runFileEntry, 0, len(results))}
		for _, r := range results {
			e := runFileEntry{File: r.Job.Path, Batch: r.Batch}
			if r.Err != nil {
				e.Error = r.Err.Error()
			}
			rep.Files = append(rep.Files, e)
		}
		return g.json(rep)
	case FormatText, "":
		var buf bytes.Buffer
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTATUS\tIMPORTED\tDUPLICATES\tFAILED")
		for _, r := range results {
			status := "error"
			imported, dups, failed := 0, 0, 0
			if b := r.Batch; b != nil {
				status = string(b.Status)
				if b.DuplicateOf != "" {
					status = "duplicate"
				}
				imported, dups, failed = b.TransactionsImported, b.DuplicatesSkipped, b.RowsFailed
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", r.Job.Path, status, imported, dups, failed)
		}
		fmt.Fprintf(w, "TOTAL (%d files)\t%d failed\t%d\t%d\t%d\n",
			totals.Files, totals.Failed, totals.Imported, totals.Duplicates, totals.RowsFailed)
		if err := w.Flush(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

func (g *Generator) json(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal JSON report")
		return nil, fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return out, nil
}

func batchID(b *models.ImportBatch) string {
	if b.DuplicateOf != "" {
		return "(duplicate of " + b.DuplicateOf + ")"
	}
	return b.ID
}

func period(b *models.ImportBatch) string {
	if b.PeriodStart.IsZero() {
		return "-"
	}
	return dateutils.FormatISO(b.PeriodStart) + " .. " + dateutils.FormatISO(b.PeriodEnd)
}
