package models

import "time"

// BatchStatus is the lifecycle state of an ImportBatch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// ImportBatch records one upload of one statement file.
type ImportBatch struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	FileName string `json:"file_name"`
	FileHash string `json:"file_hash"`
	Format   string `json:"format"`

	AccountNumber string    `json:"account_number,omitempty"`
	AccountType   string    `json:"account_type,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`

	TransactionsImported int `json:"transactions_imported"`
	DuplicatesSkipped    int `json:"duplicates_skipped"`
	RowsFailed           int `json:"rows_failed"`

	Status       BatchStatus `json:"import_status"`
	ErrorMessage string      `json:"error_message,omitempty"`

	// DuplicateOf is set on the no-op result returned for a re-uploaded file.
	// Such results are not persisted.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// IsTerminal reports whether the batch left the processing state.
func (b *ImportBatch) IsTerminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed
}

// RowsSeen is the number of transaction rows the batch looked at.
func (b *ImportBatch) RowsSeen() int {
	return b.TransactionsImported + b.DuplicatesSkipped + b.RowsFailed
}

// ExtendPeriod widens the inferred period to include d.
func (b *ImportBatch) ExtendPeriod(d time.Time) {
	if d.IsZero() {
		return
	}
	if b.PeriodStart.IsZero() || d.Before(b.PeriodStart) {
		b.PeriodStart = d
	}
	if b.PeriodEnd.IsZero() || d.After(b.PeriodEnd) {
		b.PeriodEnd = d
	}
}
