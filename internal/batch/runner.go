// Package batch imports many statement files at once. Every file becomes
// its own import batch; files of different owners are imported in
// parallel while files of one owner queue on that owner's import lock.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of files imported concurrently.
const DefaultWorkers = 4

// statementExtensions lists the file extensions picked up from a directory.
var statementExtensions = map[string]bool{
	".csv": true,
	".txt": true,
}

// Importer imports one statement file.
type Importer interface {
	ImportFile(ctx context.Context, ownerID, path string) (*models.ImportBatch, error)
}

// Job is one file to import for one owner.
type Job struct {
	Owner string
	Path  string
}

// FileResult is the outcome of one Job. Batch may be set together with Err
// when the batch was recorded as failed.
type FileResult struct {
	Job   Job
	Batch *models.ImportBatch
	Err   error
}

// DateRange is a closed period of booking dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String returns the range as "YYYY-MM-DD_YYYY-MM-DD", or "" when open.
func (dr DateRange) String() string {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%s", dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
}

// Merge returns the smallest range covering both ranges. Zero bounds are
// ignored.
func (dr DateRange) Merge(other DateRange) DateRange {
	start, end := dr.Start, dr.End
	if start.IsZero() || (!other.Start.IsZero() && other.Start.Before(start)) {
		start = other.Start
	}
	if end.IsZero() || (!other.End.IsZero() && other.End.After(end)) {
		end = other.End
	}
	return DateRange{Start: start, End: end}
}

// Totals sums the results of a run.
type Totals struct {
	Files          int       `json:"files"`
	Completed      int       `json:"completed"`
	DuplicateFiles int       `json:"duplicate_files"`
	Failed         int       `json:"failed"`
	Imported       int       `json:"transactions_imported"`
	Duplicates     int       `json:"duplicates_skipped"`
	RowsFailed     int       `json:"rows_failed"`
	Period         DateRange `json:"-"`
}

// Summarize adds up results.
func Summarize(results []FileResult) Totals {
	var t Totals
	for _, r := range results {
		t.Files++
		if r.Err != nil {
			t.Failed++
		}
		b := r.Batch
		if b == nil {
			continue
		}
		switch {
		case b.DuplicateOf != "":
			t.DuplicateFiles++
		case r.Err == nil && b.Status == models.BatchCompleted:
			t.Completed++
		}
		t.Imported += b.TransactionsImported
		t.Duplicates += b.DuplicatesSkipped
		t.RowsFailed += b.RowsFailed
		t.Period = t.Period.Merge(DateRange{Start: b.PeriodStart, End: b.PeriodEnd})
	}
	return t
}

// Runner imports files with a bounded number of workers.
type Runner struct {
	importer Importer
	logger   logging.Logger
	workers  int
}

// NewRunner returns a Runner. workers <= 0 selects DefaultWorkers.
func NewRunner(importer Importer, logger logging.Logger, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{importer: importer, logger: logger, workers: workers}
}

// StatementFiles lists the statement files directly inside dir, sorted by
// name.
func StatementFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if statementExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ImportDir imports every statement file of dir for ownerID.
func (r *Runner) ImportDir(ctx context.Context, ownerID, dir string) ([]FileResult, error) {
	files, err := StatementFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.logger.Warn("No statement files found", logging.F(logging.FieldFile, dir))
		return nil, nil
	}
	jobs := make([]Job, len(files))
	for k, f := range files {
		jobs[k] = Job{Owner: ownerID, Path: f}
	}
	return r.Run(ctx, jobs)
}

// Run imports jobs concurrently. A failing file does not stop the others;
// its error is reported in its FileResult. The returned error is only set
// when ctx ends before every job started. Results keep the order of jobs.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]FileResult, error) {
	results := make([]FileResult, len(jobs))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for k, job := range jobs {
		results[k].Job = job
		if gctx.Err() != nil {
			results[k].Err = gctx.Err()
			continue
		}
		g.Go(func() error {
			b, err := r.importer.ImportFile(gctx, job.Owner, job.Path)
			results[k].Batch, results[k].Err = b, err
			if err != nil {
				r.logger.WithError(err).Warn("Statement import failed",
					logging.F(logging.FieldFile, job.Path),
					logging.F(logging.FieldOwner, job.Owner))
			}
			return nil
		})
	}
	_ = g.Wait()

	t := Summarize(results)
	r.logger.Info("Directory import finished",
		logging.F(logging.FieldCount, t.Files),
		logging.F(logging.FieldImported, t.Imported),
		logging.F(logging.FieldDuplicates, t.Duplicates),
		logging.F(logging.FieldFailed, t.Failed),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return results, ctx.Err()
}
