package collector

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/pkg/anthropic"
)

// SentimentScorer produces a scalar sentiment in [-1, 1] for a batch of
// text snippets.
type SentimentScorer interface {
	Name() string
	Score(ctx context.Context, texts []string) (float64, error)
}

// ScorerChain tries scorers in order and falls back to a lexical keyword
// heuristic when every provider fails. Score never returns an error.
type ScorerChain struct {
	scorers []SentimentScorer
	lexical LexicalScorer
}

// NewScorerChain builds a chain from the given providers. Providers may be
// empty, in which case only the lexical heuristic runs.
func NewScorerChain(scorers ...SentimentScorer) *ScorerChain {
	return &ScorerChain{scorers: scorers}
}

// Score returns a sentiment in [-1, 1], consulting providers in order.
func (c *ScorerChain) Score(ctx context.Context, texts []string) float64 {
	if len(texts) == 0 {
		return 0
	}
	for _, s := range c.scorers {
		score, err := s.Score(ctx, texts)
		if err != nil {
			zap.L().Debug("sentiment: provider failed, trying next",
				zap.String("provider", s.Name()),
				zap.Error(err),
			)
			continue
		}
		return clamp(score)
	}
	score, _ := c.lexical.Score(ctx, texts)
	return clamp(score)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// AnthropicScorer scores sentiment with a single small-model completion.
type AnthropicScorer struct {
	Client anthropic.Client
	Model  string
}

func (a *AnthropicScorer) Name() string { return "anthropic" }

func (a *AnthropicScorer) Score(ctx context.Context, texts []string) (float64, error) {
	joined := strings.Join(texts, "\n")
	if len(joined) > 8000 {
		joined = joined[:8000]
	}

	temp := 0.0
	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.Model,
		MaxTokens:   16,
		Temperature: &temp,
		System: "You rate the overall sentiment of text about a brand. " +
			"Respond with a single decimal number between -1.0 (very negative) " +
			"and 1.0 (very positive). No other output.",
		Messages: []anthropic.Message{{Role: "user", Content: joined}},
	})
	if err != nil {
		return 0, eris.Wrap(err, "sentiment: anthropic score")
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(resp.Text), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "sentiment: unparseable score %q", resp.Text)
	}
	return score, nil
}

// LexicalScorer is the last-resort keyword heuristic: positive minus
// negative keyword hits over total hits. It cannot fail.
type LexicalScorer struct{}

func (LexicalScorer) Name() string { return "lexical" }

var positiveWords = []string{
	"great", "excellent", "good", "love", "best", "amazing", "innovative",
	"growth", "win", "success", "strong", "award", "leader", "profit",
	"recommend", "reliable", "outstanding", "improved",
}

var negativeWords = []string{
	"bad", "poor", "terrible", "worst", "hate", "lawsuit", "scandal",
	"decline", "loss", "layoff", "fraud", "fail", "breach", "recall",
	"complaint", "toxic", "outage", "fine",
}

func (LexicalScorer) Score(_ context.Context, texts []string) (float64, error) {
	lower := strings.ToLower(strings.Join(texts, " "))
	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	total := pos + neg
	if total == 0 {
		return 0, nil
	}
	return float64(pos-neg) / float64(total), nil
}
