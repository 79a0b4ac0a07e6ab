package tagging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fjacquet/stmt-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{"comma list", "grocery, Food", []string{"grocery", "food"}},
		{"prefixed", "Tags: grocery, small purchase", []string{"grocery", "small-purchase"}},
		{"bullets", "- grocery\n- `coffee`\n* grocery", []string{"grocery", "coffee"}},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAnswer(tt.answer))
		})
	}
}

func TestNLPSource_OnlyKnownTags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	for _, name := range []string{"coffee", "food", "travel"} {
		_, err := f.ledger.EnsureTag(ctx, owner, name)
		require.NoError(t, err)
	}

	gen := &fakeGenerator{answer: "coffee, breakfast, food, travel"}
	src := NewNLPSource(gen, f.repo, NLPOptions{MaxTags: 2}, f.logger)
	tx := f.tx(t, "h1", "COSTA COFFEE 0042 KRAKOW", "-14.50")

	proposals, err := src.Propose(ctx, &Input{Transaction: tx, Facts: FactsOf(tx, nil)})
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee", "food"}, tagNames(proposals))
	for _, p := range proposals {
		assert.Equal(t, models.SourceAutoNLP, p.Source)
		assert.InDelta(t, DefaultNLPConfidence, p.Confidence, 1e-9)
	}
	assert.True(t, strings.Contains(gen.prompt, "coffee, food, travel"))
	assert.Contains(t, gen.prompt, "COSTA COFFEE 0042 KRAKOW")
}

func TestNLPSource_FailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ledger.EnsureTag(ctx, owner, "coffee")
	require.NoError(t, err)

	src := NewNLPSource(&fakeGenerator{err: errors.New("quota exceeded")}, f.repo, NLPOptions{}, f.logger)
	tx := f.tx(t, "h1", "COSTA COFFEE", "-14.50")

	proposals, err := src.Propose(ctx, &Input{Transaction: tx, Facts: FactsOf(tx, nil)})
	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.True(t, f.logger.HasEntry("WARN", "NLP tagging failed"))
}

func TestNLPSource_NoVocabularyNoCall(t *testing.T) {
	f := newFixture(t, Options{})
	gen := &fakeGenerator{answer: "coffee"}
	src := NewNLPSource(gen, f.repo, NLPOptions{}, f.logger)
	tx := f.tx(t, "h1", "COSTA COFFEE", "-14.50")

	proposals, err := src.Propose(context.Background(), &Input{Transaction: tx, Facts: FactsOf(tx, nil)})
	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.Empty(t, gen.prompt)
}

func TestEngine_NLPSourceHasLowestPrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ledger.EnsureTag(ctx, owner, "expense")
	require.NoError(t, err)
	_, err = f.ledger.EnsureTag(ctx, owner, "coffee")
	require.NoError(t, err)

	f.engine.AddSource(NewNLPSource(&fakeGenerator{answer: "expense, coffee"}, f.repo, NLPOptions{}, f.logger))
	tx := f.tx(t, "h1", "COSTA COFFEE", "-14.50")

	proposals, err := f.engine.Suggest(ctx, tx)
	require.NoError(t, err)
	byTag := make(map[string]Proposal)
	for _, p := range proposals {
		byTag[p.Tag] = p
	}
	assert.Equal(t, "amount", byTag["expense"].Origin)
	assert.Equal(t, "nlp", byTag["coffee"].Origin)
	assert.Equal(t, models.SourceAutoNLP, byTag["coffee"].Source)
}
