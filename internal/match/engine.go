// Package match scores documents against organization rules using keyword
// pooled-average similarity over embedding vectors.
package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/othala/internal/embed"
	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/rules"
	"github.com/starford/othala/internal/tokenize"
)

// Stages identify which token source produced a match.
const (
	StageFilename = "filename"
	StageContent  = "content"
)

// Default thresholds. A keyword contributes only when its best token
// similarity reaches KeywordFloor; a rule is eligible only when the mean of
// contributing keywords reaches RuleThreshold.
const (
	DefaultKeywordFloor  = 0.5
	DefaultRuleThreshold = 0.7
)

// KeywordMatch is the evidence for one contributing keyword.
type KeywordMatch struct {
	Keyword    string  `json:"keyword"`
	Token      string  `json:"token"`
	Similarity float64 `json:"similarity"`
}

// Result is the outcome of matching a document against the rule set.
type Result struct {
	Rule    rules.Rule     `json:"rule"`
	Score   float64        `json:"score"`
	Matched []KeywordMatch `json:"matched"`
	Stage   string         `json:"stage"`
}

// Engine matches extracted content against rules. It is stateless apart from
// its injected embedder and thresholds.
type Engine struct {
	embedder      embed.Provider
	keywordFloor  float64
	ruleThreshold float64
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeywordFloor overrides the per-keyword minimum similarity.
func WithKeywordFloor(f float64) Option {
	return func(e *Engine) { e.keywordFloor = f }
}

// WithRuleThreshold overrides the pooled-average eligibility threshold.
func WithRuleThreshold(t float64) Option {
	return func(e *Engine) { e.ruleThreshold = t }
}

// New creates a matching engine.
func New(embedder embed.Provider, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		embedder:      embedder,
		keywordFloor:  DefaultKeywordFloor,
		ruleThreshold: DefaultRuleThreshold,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindBestMatch runs the two-stage match: filename tokens first, content
// tokens only when no rule was eligible on the filename. It returns nil when
// no rule clears the threshold; an empty rule set is a configuration problem
// logged at warn level, not an error.
func (e *Engine) FindBestMatch(ctx context.Context, ruleSet []rules.Rule, content *extract.Content) (*Result, error) {
	if len(ruleSet) == 0 {
		e.logger.Warn("match: no active rules configured")
		return nil, nil
	}

	stages := []struct {
		name   string
		tokens []string
	}{
		{StageFilename, tokenize.Filename(content.SourcePath)},
		{StageContent, tokenize.Content(content.Text)},
	}

	for _, stage := range stages {
		res, err := e.matchStage(ctx, ruleSet, stage.tokens, stage.name)
		if err != nil {
			return nil, err
		}
		if res != nil {
			e.logger.Debug("match: rule selected",
				slog.String("rule", res.Rule.Name),
				slog.String("stage", res.Stage),
				slog.Float64("score", res.Score))
			return res, nil
		}
	}
	return nil, nil
}

// matchStage scores every rule against one token set and returns the best
// eligible rule, or nil. Ties on score resolve to the earliest rule in
// ruleSet (creation order).
func (e *Engine) matchStage(ctx context.Context, ruleSet []rules.Rule, tokens []string, stage string) (*Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	tokenVecs, err := e.embedTokens(ctx, tokens)
	if err != nil {
		return nil, err
	}

	var best *Result
	for i := range ruleSet {
		rule := &ruleSet[i]
		score, matched := e.scoreRule(ctx, rule, tokens, tokenVecs)
		if score < e.ruleThreshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Result{Rule: *rule, Score: score, Matched: matched, Stage: stage}
		}
	}
	return best, nil
}

// scoreRule computes the pooled-average similarity of one rule: for every
// keyword, the single best token similarity; keywords below the floor do not
// contribute; the score is the mean of contributors. A rule with no
// contributing keywords scores 0.
func (e *Engine) scoreRule(ctx context.Context, rule *rules.Rule, tokens []string, tokenVecs [][]float32) (float64, []KeywordMatch) {
	keywords := rule.EffectiveKeywords()

	var sum float64
	var matched []KeywordMatch
	for ki, kw := range keywords {
		kv, err := e.keywordVector(ctx, rule, ki, kw)
		if err != nil {
			e.logger.Warn("match: keyword embedding failed",
				slog.String("rule", rule.Name),
				slog.String("keyword", kw),
				slog.String("error", err.Error()))
			continue
		}

		bestSim := 0.0
		bestTok := ""
		for ti, tv := range tokenVecs {
			if tv == nil {
				continue
			}
			if sim := embed.Cosine(kv, tv); sim > bestSim {
				bestSim = sim
				bestTok = tokens[ti]
			}
		}
		if bestSim < e.keywordFloor {
			continue
		}
		sum += bestSim
		matched = append(matched, KeywordMatch{Keyword: kw, Token: bestTok, Similarity: bestSim})
	}

	if len(matched) == 0 {
		return 0, nil
	}
	return sum / float64(len(matched)), matched
}

// keywordVector prefers the embedding cached on the rule and falls back to
// embedding on the fly when the cache is missing or stale in shape.
func (e *Engine) keywordVector(ctx context.Context, rule *rules.Rule, idx int, keyword string) ([]float32, error) {
	if idx < len(rule.Embeddings) && len(rule.Embeddings[idx]) > 0 {
		return rule.Embeddings[idx], nil
	}
	return e.embedder.Embed(ctx, keyword)
}

// embedTokens embeds every document token. Individual failures leave a nil
// slot rather than aborting the stage.
func (e *Engine) embedTokens(ctx context.Context, tokens []string) ([][]float32, error) {
	out := make([][]float32, len(tokens))
	for i, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("match: embed tokens: %w", err)
		}
		v, err := e.embedder.Embed(ctx, tok)
		if err != nil {
			continue
		}
		out[i] = v
	}
	return out, nil
}
