package tagging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultNLPConfidence is the confidence of model-proposed tags.
const DefaultNLPConfidence = 0.6

// TextGenerator answers a prompt with free text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is a TextGenerator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator connects to Gemini with apiKey.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: client.GenerativeModel(model)}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

// Close releases the client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// NLPOptions tunes an NLPSource.
type NLPOptions struct {
	MaxTags    int
	Confidence float64
	Timeout    time.Duration
}

// NLPSource asks a language model to pick tags from the owner's existing
// vocabulary. It never invents tags and never fails the caller: errors are
// logged and yield no proposals.
type NLPSource struct {
	gen    TextGenerator
	tags   repository.TagRepository
	opts   NLPOptions
	logger logging.Logger
}

// NewNLPSource returns an NLPSource over gen.
func NewNLPSource(gen TextGenerator, tags repository.TagRepository, opts NLPOptions, logger logging.Logger) *NLPSource {
	if opts.MaxTags <= 0 {
		opts.MaxTags = 3
	}
	if opts.Confidence <= 0 {
		opts.Confidence = DefaultNLPConfidence
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &NLPSource{gen: gen, tags: tags, opts: opts, logger: logger}
}

// Name returns "nlp".
func (s *NLPSource) Name() string { return "nlp" }

// Propose asks the generator to pick tags from the owner's vocabulary.
func (s *NLPSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	tx := in.Transaction
	vocabulary, err := s.tags.ListTags(ctx, tx.OwnerID)
	if err != nil {
		s.logger.WithError(err).Warn("Skipping NLP tagging, cannot list tags")
		return nil, nil
	}
	if len(vocabulary) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(vocabulary))
	names := make([]string, 0, len(vocabulary))
	for _, t := range vocabulary {
		known[t.Name] = true
		names = append(names, t.Name)
	}
	sort.Strings(names)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	answer, err := s.gen.Generate(callCtx, buildPrompt(tx, names, s.opts.MaxTags))
	if err != nil {
		s.logger.WithError(err).Warn("NLP tagging failed",
			logging.F(logging.FieldTransactionID, tx.ID))
		return nil, nil
	}

	var out []Proposal
	for _, name := range parseAnswer(answer) {
		if !known[name] {
			continue
		}
		out = append(out, Proposal{
			Tag:        name,
			Confidence: s.opts.Confidence,
			Source:     models.SourceAutoNLP,
			Origin:     s.Name(),
			Rationale:  "suggested by language model",
		})
		if len(out) == s.opts.MaxTags {
			break
		}
	}
	return out, nil
}

func buildPrompt(tx *models.Transaction, vocabulary []string, maxTags int) string {
	return fmt.Sprintf(`Pick at most %d tags for this bank transaction.
Title: %s
Operation type: %s
Counterparty: %s
Amount: %s %s
Merchant: %s

Only use tags from this list: %s

Respond with the chosen tags separated by commas and nothing else.`,
		maxTags,
		tx.Title,
		tx.OperationType,
		tx.Counterparty,
		tx.Amount.StringFixed(2), tx.Currency,
		tx.NormalizedMerchantName,
		strings.Join(vocabulary, ", "))
}

// parseAnswer reads "Tags: grocery, food" or one tag per line.
func parseAnswer(answer string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, ":"); i >= 0 {
			line = line[i+1:]
		}
		for _, part := range strings.Split(line, ",") {
			name := models.NormalizeTagName(strings.Trim(part, " -*`\"'."))
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
