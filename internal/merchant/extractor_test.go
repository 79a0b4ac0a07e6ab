package merchant

import (
	"context"
	"testing"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository/memory"
	"fjacquet/stmt-ledger/internal/repository/repotest"
	"fjacquet/stmt-ledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const autoMerchantThreshold = 0.8

func newExtractor(t *testing.T) (*Extractor, *memory.Store) {
	t.Helper()
	repo := memory.NewStore()
	return NewExtractor(repo, repo, logging.NewMockLogger(), Options{}), repo
}

func persistTx(t *testing.T, repo *memory.Store, title string) *models.Transaction {
	t.Helper()
	ctx := context.Background()
	b := repotest.NewBatch("owner-1", "file-"+title)
	require.NoError(t, repo.CreateBatch(ctx, b))
	tx := repotest.NewTransaction("owner-1", b.ID, "hash-"+title, "-16.43")
	tx.Title = title
	tx.RawTitle = title
	inserted, err := repo.RecordRow(ctx, tx)
	require.NoError(t, err)
	require.True(t, inserted)
	return tx
}

func addMerchant(t *testing.T, repo *memory.Store, name string, patterns ...models.MerchantPattern) *models.Merchant {
	t.Helper()
	ctx := context.Background()
	m, _, err := repo.EnsureMerchant(ctx, &models.Merchant{NormalizedName: name, DisplayName: name})
	require.NoError(t, err)
	for _, p := range patterns {
		p.MerchantID = m.ID
		_, err := repo.AddPattern(ctx, &p)
		require.NoError(t, err)
	}
	return m
}

func TestExtract_HighPriorityExactBeatsSubstring(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)

	shell := addMerchant(t, repo, "shell", models.MerchantPattern{Kind: models.PatternExact, Pattern: "shell station", Priority: 20})
	addMerchant(t, repo, "station co", models.MerchantPattern{Kind: models.PatternSubstring, Pattern: "station", Priority: 5})

	res, err := e.Extract(ctx, &models.Transaction{Title: "SHELL STATION"})
	require.NoError(t, err)
	require.NotNil(t, res.Merchant)
	assert.Equal(t, shell.ID, res.Merchant.ID)
	assert.Equal(t, SourcePattern, res.Source)
	assert.Greater(t, res.Confidence, autoMerchantThreshold)
}

func TestExtract_TieBreakBySpecificity(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)

	addMerchant(t, repo, "by regex", models.MerchantPattern{Kind: models.PatternRegex, Pattern: `^ORLEN\b`, Priority: 10})
	addMerchant(t, repo, "by substring", models.MerchantPattern{Kind: models.PatternSubstring, Pattern: "orlen", Priority: 10})
	exact := addMerchant(t, repo, "by exact", models.MerchantPattern{Kind: models.PatternExact, Pattern: "orlen", Priority: 10})

	res, err := e.Extract(ctx, &models.Transaction{Title: "ORLEN 4102 /POZNAN"})
	require.NoError(t, err)
	assert.Equal(t, exact.ID, res.Merchant.ID, "exact matches the folded merchant name")
	require.NotNil(t, res.Pattern)
	assert.Equal(t, models.PatternExact, res.Pattern.Kind)
}

func TestExtract_RegexIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)
	kfc := addMerchant(t, repo, "kfc", models.MerchantPattern{Kind: models.PatternRegex, Pattern: `\bKFC\b`, Priority: 10})

	res, err := e.Extract(ctx, &models.Transaction{Title: "Kfc Galeria Mokotow"})
	require.NoError(t, err)
	assert.Equal(t, kfc.ID, res.Merchant.ID)
}

func TestEnrich_ZabkaWithSeededTables(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)
	tables, err := store.Default()
	require.NoError(t, err)
	_, err = store.Seed(ctx, repo, tables, logging.NewMockLogger())
	require.NoError(t, err)

	tx := persistTx(t, repo, "ŻABKA 1234 WARSZAWA")
	updated, res, err := e.Enrich(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, "zabka", res.Merchant.NormalizedName)
	assert.Equal(t, SourcePattern, res.Source)
	require.NotNil(t, res.Store)
	assert.Equal(t, "1234", res.Store.Identifier)
	assert.Equal(t, "Warszawa", res.Store.City)
	assert.Equal(t, models.DefaultStoreCountry, res.Store.Country)

	assert.Equal(t, res.Merchant.ID, updated.MerchantID)
	assert.Equal(t, "zabka", updated.NormalizedMerchantName)
	assert.Equal(t, res.Store.ID, updated.StoreID)
	assert.Equal(t, "Warszawa", updated.LocationExtracted)
	assert.InDelta(t, DefaultPatternConfidence, updated.MerchantConfidence, 1e-9)

	stored, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.StoreID, stored.StoreID)

	// same store code again resolves to the same store
	other := persistTx(t, repo, "ZABKA 1234 WARSZAWA")
	_, again, err := e.Enrich(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, res.Store.ID, again.Store.ID)
}

func TestExtract_HeuristicCreatesMerchant(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)

	res, err := e.Extract(ctx, &models.Transaction{Title: "NOWY SKLEP 123 KRAKOW"})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, res.Source)
	assert.Equal(t, "nowy sklep", res.Merchant.NormalizedName)
	assert.Equal(t, "Nowy Sklep", res.Merchant.DisplayName)
	assert.Less(t, res.Confidence, autoMerchantThreshold)
	assert.Equal(t, "Krakow", res.Location)
	require.NotNil(t, res.Store)
	assert.Equal(t, "123", res.Store.Identifier)

	m, err := repo.FindMerchantByName(ctx, "nowy sklep")
	require.NoError(t, err)
	assert.Equal(t, res.Merchant.ID, m.ID)

	again, err := e.Extract(ctx, &models.Transaction{Title: "Nowy Sklep 123 Krakow"})
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.Merchant.ID, "heuristic merchants are reused by normalized name")
}

func TestExtract_FallbackDoesNotCreateStore(t *testing.T) {
	e, repo := newExtractor(t)

	res, err := e.Extract(context.Background(), &models.Transaction{Title: "12345"})
	require.NoError(t, err)
	assert.InDelta(t, confidenceFallback, res.Confidence, 1e-9)
	assert.Nil(t, res.Store)

	stores, err := repo.ListStores(context.Background(), res.Merchant.ID)
	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestExtract_EmptyTitleIsAmbiguous(t *testing.T) {
	e, _ := newExtractor(t)
	_, err := e.Extract(context.Background(), &models.Transaction{Title: "  "})
	assert.ErrorIs(t, err, parsererror.ErrEnrichmentAmbiguous)
}

func TestEnrich_NeverOverwritesManualMerchant(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)
	addMerchant(t, repo, "zabka", models.MerchantPattern{Kind: models.PatternSubstring, Pattern: "zabka", Priority: 10})
	manual := addMerchant(t, repo, "corner shop")

	tx := persistTx(t, repo, "ZABKA Z5727 K.1 WARSZAWA")
	_, err := repo.FillEnrichment(ctx, tx.ID, models.Enrichment{
		MerchantID:             manual.ID,
		NormalizedMerchantName: manual.NormalizedName,
		Confidence:             1,
	})
	require.NoError(t, err)
	tx, err = repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)

	updated, res, err := e.Enrich(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, "zabka", res.Merchant.NormalizedName)
	assert.Equal(t, manual.ID, updated.MerchantID)
	assert.Equal(t, "corner shop", updated.NormalizedMerchantName)
	assert.Empty(t, updated.StoreID, "a store of another merchant is not attached")
	assert.Equal(t, "Warszawa", updated.LocationExtracted)
}

func TestAddPattern_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	e, repo := newExtractor(t)

	before, err := e.Extract(ctx, &models.Transaction{Title: "SUPER PIEKARNIA"})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, before.Source)

	bakery := addMerchant(t, repo, "piekarnia")
	require.NoError(t, e.AddPattern(ctx, &models.MerchantPattern{
		MerchantID: bakery.ID,
		Kind:       models.PatternSubstring,
		Pattern:    "PIEKARNIA",
		Priority:   1,
	}))

	after, err := e.Extract(ctx, &models.Transaction{Title: "SUPER PIEKARNIA"})
	require.NoError(t, err)
	assert.Equal(t, SourcePattern, after.Source)
	assert.Equal(t, bakery.ID, after.Merchant.ID)
}

func TestAddPattern_RejectsInvalidRegex(t *testing.T) {
	e, repo := newExtractor(t)
	m := addMerchant(t, repo, "broken")

	err := e.AddPattern(context.Background(), &models.MerchantPattern{
		MerchantID: m.ID,
		Kind:       models.PatternRegex,
		Pattern:    "([",
	})
	var verr *parsererror.ValidationError
	assert.ErrorAs(t, err, &verr)
}
