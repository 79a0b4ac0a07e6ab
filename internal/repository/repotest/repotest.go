// Package repotest holds the behaviour every repository.Repository must
// share. Implementations call Run from their own tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) repository.Repository

// Run executes the shared suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("BatchLifecycle", func(t *testing.T) { testBatchLifecycle(t, newRepo(t)) })
	t.Run("RecordRowDeduplicates", func(t *testing.T) { testRecordRow(t, newRepo(t)) })
	t.Run("ConcurrentRecordRow", func(t *testing.T) { testConcurrentRecordRow(t, newRepo(t)) })
	t.Run("FillEnrichment", func(t *testing.T) { testFillEnrichment(t, newRepo(t)) })
	t.Run("Merchants", func(t *testing.T) { testMerchants(t, newRepo(t)) })
	t.Run("TagLinks", func(t *testing.T) { testTagLinks(t, newRepo(t)) })
	t.Run("MergeTags", func(t *testing.T) { testMergeTags(t, newRepo(t)) })
	t.Run("Synonyms", func(t *testing.T) { testSynonyms(t, newRepo(t)) })
	t.Run("Rules", func(t *testing.T) { testRules(t, newRepo(t)) })
	t.Run("DeleteBatchKeepsTransactions", func(t *testing.T) { testDeleteBatch(t, newRepo(t)) })
}

// NewBatch returns a processing batch for owner.
func NewBatch(owner, hash string) *models.ImportBatch {
	return &models.ImportBatch{
		OwnerID:  owner,
		FileName: hash + ".csv",
		FileHash: hash,
		Format:   "mbank",
		Status:   models.BatchProcessing,
	}
}

// NewTransaction returns a transaction with the given hash and amount.
func NewTransaction(owner, batchID, hash, amount string) *models.Transaction {
	d := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return &models.Transaction{
		OwnerID:         owner,
		ImportBatchID:   batchID,
		Hash:            hash,
		BookingDate:     d,
		TransactionDate: d,
		OperationType:   "ZAKUP PRZY UŻYCIU KARTY",
		Title:           "ZABKA Z5727 K.1 WARSZAWA",
		RawTitle:        "ZABKA Z5727 K.1 WARSZAWA",
		Amount:          decimal.RequireFromString(amount),
		Currency:        models.DefaultCurrency,
	}
}

func mustBatch(t *testing.T, repo repository.Repository, owner, hash string) *models.ImportBatch {
	t.Helper()
	b := NewBatch(owner, hash)
	require.NoError(t, repo.CreateBatch(context.Background(), b))
	require.NotEmpty(t, b.ID)
	return b
}

func mustTx(t *testing.T, repo repository.Repository, tx *models.Transaction) *models.Transaction {
	t.Helper()
	inserted, err := repo.RecordRow(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, inserted)
	return tx
}

func mustTag(t *testing.T, repo repository.Repository, owner, name string) *models.Tag {
	t.Helper()
	tag, _, err := repo.EnsureTag(context.Background(), &models.Tag{
		OwnerID: owner, Name: name, DisplayName: models.TagDisplayName(name), Color: models.TagColor(name),
	})
	require.NoError(t, err)
	return tag
}

func testBatchLifecycle(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")

	err := repo.CreateBatch(ctx, NewBatch("alice", "h1"))
	assert.Error(t, err, "file hash is unique per owner")
	assert.NoError(t, repo.CreateBatch(ctx, NewBatch("bob", "h1")))

	found, err := repo.FindBatchByHash(ctx, "alice", "h1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)
	_, err = repo.FindBatchByHash(ctx, "alice", "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.CountRowError(ctx, b.ID))
	b.Status = models.BatchCompleted
	b.AccountNumber = "12345"
	b.PeriodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b.PeriodEnd = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	b.CompletedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateBatch(ctx, b))

	got, err := repo.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, got.Status)
	assert.Equal(t, "12345", got.AccountNumber)
	assert.Equal(t, 1, got.RowsFailed, "UpdateBatch leaves counters alone")
	assert.True(t, got.PeriodStart.Equal(b.PeriodStart))
	assert.True(t, got.PeriodEnd.Equal(b.PeriodEnd))
	assert.False(t, got.CompletedAt.IsZero())

	require.NoError(t, repo.ResetBatch(ctx, b.ID))
	got, err = repo.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchProcessing, got.Status)
	assert.Zero(t, got.RowsFailed)

	list, err := repo.ListBatches(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.UpdateBatch(ctx, &models.ImportBatch{ID: "missing"}), repository.ErrNotFound)
}

func testRecordRow(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")

	first := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-16.43"))
	assert.NotEmpty(t, first.ID)

	inserted, err := repo.RecordRow(ctx, NewTransaction("alice", b.ID, "tx-1", "-16.43"))
	require.NoError(t, err)
	assert.False(t, inserted)

	mustTx(t, repo, NewTransaction("alice", b.ID, "tx-2", "250.00"))
	require.NoError(t, repo.CountDuplicate(ctx, b.ID))

	got, err := repo.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TransactionsImported)
	assert.Equal(t, 2, got.DuplicatesSkipped)

	stored, err := repo.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("-16.43").Equal(stored.Amount))
	assert.Equal(t, "ZABKA Z5727 K.1 WARSZAWA", stored.Title)
	assert.False(t, stored.BalanceAfter.Valid)

	all, err := repo.ListTransactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	none, err := repo.ListTransactions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testConcurrentRecordRow(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.RecordRow(ctx, NewTransaction("alice", b.ID, "same", "-5.00"))
			assert.NoError(t, err)
			results <- inserted
		}()
	}
	wg.Wait()
	close(results)

	n := 0
	for inserted := range results {
		if inserted {
			n++
		}
	}
	assert.Equal(t, 1, n, "exactly one insert wins")

	got, err := repo.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TransactionsImported)
	assert.Equal(t, workers-1, got.DuplicatesSkipped)
}

func testFillEnrichment(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")
	tx := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-16.43"))

	m, _, err := repo.EnsureMerchant(ctx, &models.Merchant{NormalizedName: "zabka", DisplayName: "Żabka"})
	require.NoError(t, err)
	other, _, err := repo.EnsureMerchant(ctx, &models.Merchant{NormalizedName: "lidl", DisplayName: "Lidl"})
	require.NoError(t, err)
	st, _, err := repo.EnsureStore(ctx, &models.Store{MerchantID: m.ID, Identifier: "Z5727", Country: models.DefaultStoreCountry})
	require.NoError(t, err)

	got, err := repo.FillEnrichment(ctx, tx.ID, models.Enrichment{
		MerchantID: m.ID, NormalizedMerchantName: "zabka", StoreID: st.ID, Location: "Warszawa", Confidence: 0.95,
	})
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.MerchantID)
	assert.Equal(t, "zabka", got.NormalizedMerchantName)
	assert.Equal(t, st.ID, got.StoreID)
	assert.Equal(t, "Warszawa", got.LocationExtracted)
	assert.InDelta(t, 0.95, got.MerchantConfidence, 1e-9)

	got, err = repo.FillEnrichment(ctx, tx.ID, models.Enrichment{
		MerchantID: other.ID, NormalizedMerchantName: "lidl", Location: "Kraków", Confidence: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.MerchantID, "existing merchant is never overwritten")
	assert.Equal(t, "Warszawa", got.LocationExtracted)
	assert.InDelta(t, 0.95, got.MerchantConfidence, 1e-9)

	usage, err := repo.MerchantUsage(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, m.ID, usage[0].MerchantID)
	assert.Equal(t, 1, usage[0].TransactionCount)
	assert.False(t, usage[0].HasPattern)

	usage, err = repo.MerchantUsage(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Empty(t, usage)

	_, err = repo.FillEnrichment(ctx, "missing", models.Enrichment{MerchantID: m.ID})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testMerchants(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	m, created, err := repo.EnsureMerchant(ctx, &models.Merchant{NormalizedName: "zabka", DisplayName: "Żabka", Category: "grocery"})
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := repo.EnsureMerchant(ctx, &models.Merchant{NormalizedName: "zabka", DisplayName: "ZABKA"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, "Żabka", again.DisplayName)

	found, err := repo.FindMerchantByName(ctx, "zabka")
	require.NoError(t, err)
	assert.Equal(t, "grocery", found.Category)

	p := &models.MerchantPattern{MerchantID: m.ID, Kind: models.PatternSubstring, Pattern: "zabka", Priority: 10}
	added, err := repo.AddPattern(ctx, p)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddPattern(ctx, &models.MerchantPattern{MerchantID: m.ID, Kind: models.PatternSubstring, Pattern: "zabka", Priority: 10})
	require.NoError(t, err)
	assert.False(t, added)
	_, err = repo.AddPattern(ctx, &models.MerchantPattern{MerchantID: m.ID, Kind: "fuzzy", Pattern: "x"})
	assert.Error(t, err)

	patterns, err := repo.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 10, patterns[0].Priority)

	for i, name := range []string{"shopping", "grocery"} {
		_, err := repo.AddDefaultTag(ctx, &models.MerchantDefaultTag{MerchantID: m.ID, TagName: name, Confidence: 0.85, Priority: i})
		require.NoError(t, err)
	}
	added, err = repo.AddDefaultTag(ctx, &models.MerchantDefaultTag{MerchantID: m.ID, TagName: "grocery", Confidence: 0.85})
	require.NoError(t, err)
	assert.False(t, added)

	defaults, err := repo.DefaultTags(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, defaults, 2)
	assert.Equal(t, "grocery", defaults[0].TagName, "highest priority first")

	st, created, err := repo.EnsureStore(ctx, &models.Store{MerchantID: m.ID, Identifier: "Z5727", City: "Warszawa"})
	require.NoError(t, err)
	assert.True(t, created)
	again2, created, err := repo.EnsureStore(ctx, &models.Store{MerchantID: m.ID, Identifier: "Z5727"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, st.ID, again2.ID)
	assert.Equal(t, "Warszawa", again2.City)

	stores, err := repo.ListStores(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func testTagLinks(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")
	tx := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-16.43"))
	tag := mustTag(t, repo, "alice", "grocery")

	_, created, err := repo.EnsureTag(ctx, &models.Tag{OwnerID: "alice", Name: "grocery"})
	require.NoError(t, err)
	assert.False(t, created)

	conf := 0.85
	linked, err := repo.LinkTag(ctx, &models.TransactionTag{TransactionID: tx.ID, TagID: tag.ID, Source: models.SourceAutoMerchant, Confidence: &conf})
	require.NoError(t, err)
	assert.True(t, linked)
	linked, err = repo.LinkTag(ctx, &models.TransactionTag{TransactionID: tx.ID, TagID: tag.ID, Source: models.SourceManual})
	require.NoError(t, err)
	assert.False(t, linked)

	got, err := repo.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)

	links, err := repo.TransactionTags(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.SourceAutoMerchant, links[0].Source)
	require.NotNil(t, links[0].Confidence)
	assert.InDelta(t, 0.85, *links[0].Confidence, 1e-9)

	untagged, err := repo.ListUntagged(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, untagged)

	removed, err := repo.UnlinkTag(ctx, tx.ID, tag.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.UnlinkTag(ctx, tx.ID, tag.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	got, err = repo.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UsageCount)
	n, err := repo.CountLinks(ctx, tag.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.LinkTag(ctx, &models.TransactionTag{TransactionID: tx.ID, TagID: tag.ID, Source: "bogus"})
	assert.Error(t, err)
}

func testMergeTags(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")
	tx1 := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-1.00"))
	tx2 := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-2", "-2.00"))
	groceries := mustTag(t, repo, "alice", "groceries")
	grocery := mustTag(t, repo, "alice", "grocery")

	for _, l := range []models.TransactionTag{
		{TransactionID: tx1.ID, TagID: groceries.ID, Source: models.SourceManual},
		{TransactionID: tx2.ID, TagID: groceries.ID, Source: models.SourceManual},
		{TransactionID: tx2.ID, TagID: grocery.ID, Source: models.SourceManual},
	} {
		_, err := repo.LinkTag(ctx, &l)
		require.NoError(t, err)
	}

	moved, err := repo.MergeTags(ctx, groceries.ID, grocery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	from, err := repo.GetTag(ctx, groceries.ID)
	require.NoError(t, err)
	assert.Zero(t, from.UsageCount)
	to, err := repo.GetTag(ctx, grocery.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, to.UsageCount)

	n, err := repo.CountLinks(ctx, grocery.ID)
	require.NoError(t, err)
	assert.Equal(t, to.UsageCount, n, "usage count matches links")
}

func testSynonyms(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	grocery := mustTag(t, repo, "alice", "grocery")
	food := mustTag(t, repo, "alice", "food")

	syn := &models.TagSynonym{OwnerID: "alice", Synonym: "groceries", CanonicalTagID: grocery.ID, Source: models.SynonymManual, Confidence: 1, IsActive: true}
	require.NoError(t, repo.SaveSynonym(ctx, syn))
	id := syn.ID

	found, err := repo.FindSynonym(ctx, "alice", "groceries")
	require.NoError(t, err)
	assert.Equal(t, grocery.ID, found.CanonicalTagID)
	_, err = repo.FindSynonym(ctx, "bob", "groceries")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.SaveSynonym(ctx, &models.TagSynonym{OwnerID: "alice", Synonym: "groceries", CanonicalTagID: food.ID, Source: models.SynonymManual, Confidence: 1, IsActive: true}))
	found, err = repo.FindSynonym(ctx, "alice", "groceries")
	require.NoError(t, err)
	assert.Equal(t, food.ID, found.CanonicalTagID)
	assert.Equal(t, id, found.ID)

	require.NoError(t, repo.SaveSynonym(ctx, &models.TagSynonym{OwnerID: "alice", Synonym: "groceries", CanonicalTagID: food.ID, Source: models.SynonymManual, IsActive: false}))
	_, err = repo.FindSynonym(ctx, "alice", "groceries")
	assert.ErrorIs(t, err, repository.ErrNotFound, "inactive synonyms are ignored")

	list, err := repo.ListSynonyms(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testRules(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	tag := mustTag(t, repo, "alice", "big-purchase")

	mk := func(name string, priority int, active bool) *models.TaggingRule {
		r := &models.TaggingRule{
			OwnerID: "alice", Name: name, Priority: priority, IsActive: active,
			Condition: `{"field":"abs_amount","op":"gt","value":"1000"}`,
			TagIDs:    []string{tag.ID}, Confidence: models.DefaultRuleConfidence,
		}
		require.NoError(t, repo.CreateRule(ctx, r))
		return r
	}
	low := mk("low", 1, true)
	high := mk("high", 10, true)
	mk("off", 50, false)

	assert.Error(t, repo.CreateRule(ctx, &models.TaggingRule{OwnerID: "alice", Name: "empty"}))

	active, err := repo.ListRules(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, high.ID, active[0].ID)
	assert.Equal(t, low.ID, active[1].ID)
	assert.Equal(t, []string{tag.ID}, active[0].TagIDs)
	assert.JSONEq(t, high.Condition, active[0].Condition)

	all, err := repo.ListRules(ctx, "alice", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	b := mustBatch(t, repo, "alice", "h1")
	tx := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-1500.00"))

	has, err := repo.HasApplication(ctx, high.ID, tx.ID)
	require.NoError(t, err)
	assert.False(t, has)
	recorded, err := repo.RecordApplication(ctx, &models.RuleApplication{RuleID: high.ID, TransactionID: tx.ID})
	require.NoError(t, err)
	assert.True(t, recorded)
	recorded, err = repo.RecordApplication(ctx, &models.RuleApplication{RuleID: high.ID, TransactionID: tx.ID})
	require.NoError(t, err)
	assert.False(t, recorded)
	has, err = repo.HasApplication(ctx, high.ID, tx.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func testDeleteBatch(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	b := mustBatch(t, repo, "alice", "h1")
	tx := mustTx(t, repo, NewTransaction("alice", b.ID, "tx-1", "-1.00"))

	require.NoError(t, repo.DeleteBatch(ctx, b.ID))
	_, err := repo.GetBatch(ctx, b.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ImportBatchID)

	mustBatch(t, repo, "alice", "h1")
	assert.ErrorIs(t, repo.DeleteBatch(ctx, "missing"), repository.ErrNotFound)
}
