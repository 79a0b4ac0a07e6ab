package logging

// Field names shared by every component so log lines stay filterable.
const (
	FieldFile          = "file_path"
	FieldFormat        = "format"
	FieldOwner         = "owner"
	FieldBatchID       = "batch_id"
	FieldTransactionID = "transaction_id"
	FieldLine          = "line"
	FieldHash          = "hash"
	FieldMerchant      = "merchant"
	FieldStore         = "store"
	FieldPattern       = "pattern"
	FieldConfidence    = "confidence"
	FieldTag           = "tag"
	FieldRule          = "rule_id"
	FieldSource        = "source"
	FieldStatus        = "status"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
	FieldCount         = "count"
	FieldImported      = "imported"
	FieldDuplicates    = "duplicates"
	FieldFailed        = "rows_failed"
	FieldDriver        = "driver"
)
