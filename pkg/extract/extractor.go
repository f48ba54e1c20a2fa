package extract

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/umputun/wellscope/pkg/classifier"
	"github.com/umputun/wellscope/pkg/domain"
	"github.com/umputun/wellscope/pkg/normalize"
)

// Gateway is the classification capability the extractor consumes
type Gateway interface {
	Classify(ctx context.Context, task classifier.Task, text string) classifier.Outcome
}

// Normalizer prepares raw text for classification
type Normalizer interface {
	Normalize(ctx context.Context, text string) normalize.Result
}

// Extractor derives the per-item signals by composing the normalizer and the
// classifier gateway with keyword overrides. Extract is a total function:
// any upstream failure degrades the affected signal to its default.
type Extractor struct {
	gateway    Gateway
	normalizer Normalizer
	threshold  float64 // minimum confidence to accept a sentiment label
}

// New creates an extractor. The threshold is the sentiment acceptance
// confidence, a precision/recall tuning point set by configuration.
func New(gateway Gateway, normalizer Normalizer, threshold float64) *Extractor {
	return &Extractor{gateway: gateway, normalizer: normalizer, threshold: threshold}
}

// Extract analyzes one item and returns a complete result, never an error.
// The four classification tasks run concurrently and all complete before the
// result is finalized.
func (e *Extractor) Extract(ctx context.Context, item domain.TextItem) domain.AnalysisResult {
	res := domain.NewAnalysisResult(item)

	if strings.TrimSpace(item.RawText) == "" {
		return res
	}

	norm := e.normalizer.Normalize(ctx, item.RawText)
	res.NormalizedText = norm.Clean
	res.Language = norm.Language

	// emoji-only text is decided by the emoji sets directly, no backend calls
	if norm.EmojiOnly {
		res.SentimentLabel = norm.EmojiSentiment
		return res
	}

	var sentiment, toxicity, misinfo, entities classifier.Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { sentiment = e.gateway.Classify(gctx, classifier.TaskSentiment, norm.Clean); return nil })
	g.Go(func() error { toxicity = e.gateway.Classify(gctx, classifier.TaskToxicity, norm.Clean); return nil })
	g.Go(func() error { misinfo = e.gateway.Classify(gctx, classifier.TaskMisinfo, norm.Clean); return nil })
	g.Go(func() error { entities = e.gateway.Classify(gctx, classifier.TaskEntities, norm.Clean); return nil })
	_ = g.Wait() // workers never return errors, failures live in the outcomes

	e.applySentiment(&res, sentiment)
	e.applyToxicity(&res, toxicity, item.RawText, norm.Clean)
	e.applyMisinfo(&res, misinfo)
	e.applyEntities(&res, entities, item.RawText, norm.Clean)

	return res
}

// applySentiment accepts the backend label only above the confidence
// threshold, anything else stays neutral
func (e *Extractor) applySentiment(res *domain.AnalysisResult, outcome classifier.Outcome) {
	if !outcome.OK() || outcome.Confidence < e.threshold {
		return
	}
	switch outcome.Label {
	case classifier.LabelPositive:
		res.SentimentLabel = domain.SentimentPositive
	case classifier.LabelNegative:
		res.SentimentLabel = domain.SentimentNegative
	default:
		res.SentimentLabel = domain.SentimentNeutral
	}
	res.SentimentConfidence = outcome.Confidence
}

// applyToxicity marks toxic on keyword match OR model label, either signal
// alone suffices. Trades precision for recall so a model outage never hides
// toxic content.
func (e *Extractor) applyToxicity(res *domain.AnalysisResult, outcome classifier.Outcome, raw, clean string) {
	keywordHit := classifier.ContainsToxic(raw) || classifier.ContainsToxic(clean)
	modelHit := outcome.OK() && outcome.Label == classifier.LabelToxic
	res.Toxic = keywordHit || modelHit
	res.Respectful = !res.Toxic
}

// applyMisinfo uses the model label only, no keyword fallback
func (e *Extractor) applyMisinfo(res *domain.AnalysisResult, outcome classifier.Outcome) {
	res.Misinformation = outcome.OK() && outcome.Label == classifier.LabelMisinfo
}

// applyEntities fills location and personal-info signals. The email/phone
// patterns always run so PII detection survives an entity-model outage; the
// gazetteer backs up location extraction the same way.
func (e *Extractor) applyEntities(res *domain.AnalysisResult, outcome classifier.Outcome, raw, clean string) {
	if outcome.OK() {
		for _, entity := range outcome.Entities {
			switch entity.Group {
			case classifier.EntityLocation:
				if res.MentionsLocation == "" {
					res.MentionsLocation = entity.Word
				}
			case classifier.EntityEmail, classifier.EntityPhone:
				res.DisclosesPersonalInfo = true
			}
		}
	}

	if res.MentionsLocation == "" {
		res.MentionsLocation = classifier.GazetteerLocation(clean)
	}

	if !res.DisclosesPersonalInfo {
		res.DisclosesPersonalInfo = len(classifier.FindEmails(raw)) > 0 || len(classifier.FindPhones(raw)) > 0
	}
}
