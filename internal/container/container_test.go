package container

import (
	"context"
	"path/filepath"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_NilConfig(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration cannot be nil")

	_, err = NewWithRepository(context.Background(), nil, memory.NewStore(), logging.NewMockLogger())
	assert.Error(t, err)
}

func TestNewWithRepository(t *testing.T) {
	logger := logging.NewMockLogger()
	c, err := NewWithRepository(context.Background(), config.Default(), memory.NewStore(), logger)
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.GetImporter())
	assert.NotNil(t, c.GetRunner())
	assert.NotNil(t, c.GetLedger())
	assert.NotNil(t, c.GetExtractor())
	assert.NotNil(t, c.GetReportGenerator())
	assert.NotNil(t, c.GetTables())
	assert.Equal(t, []string{"rule", "merchant", "operation_type", "amount", "keyword"}, c.GetEngine().Sources())
	assert.Contains(t, c.GetParsers().Formats(), parser.Format(c.GetConfig().Import.Format))

	merchants, err := c.GetRepository().ListMerchants(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, merchants)
	assert.True(t, logger.HasEntry("INFO", "Container initialized"))
}

func TestNewWithRepository_AIWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Enabled = true
	cfg.AI.APIKey = ""
	logger := logging.NewMockLogger()

	c, err := NewWithRepository(context.Background(), cfg, memory.NewStore(), logger)
	require.NoError(t, err)
	defer c.Close()

	assert.NotContains(t, c.GetEngine().Sources(), "nlp")
	assert.True(t, logger.HasEntry("WARN", "NLP tagging disabled"))
}

func TestNewWithRepository_BadTablesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Tagging.TablesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewWithRepository(context.Background(), cfg, memory.NewStore(), logging.NewMockLogger())
	assert.Error(t, err)
}

func TestNewContainer_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "ledger.db")

	c, err := NewContainer(context.Background(), cfg)
	require.NoError(t, err)

	batches, err := c.GetRepository().ListBatches(context.Background(), cfg.Import.Owner)
	require.NoError(t, err)
	assert.Empty(t, batches)
	require.NoError(t, c.Close())
}
