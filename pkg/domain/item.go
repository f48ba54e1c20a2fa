package domain

import "time"

// ItemKind is the type of analyzed text unit
type ItemKind string

// item kinds
const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// Sentiment is a normalized sentiment label
type Sentiment string

// sentiment labels, the only values SentimentLabel may hold
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// TextItem represents one unit of user content pulled from the feed, a post or a comment.
// Immutable once handed to the extractor.
type TextItem struct {
	ID             string
	RawText        string
	Kind           ItemKind
	CreatedAt      time.Time // zero when the feed didn't provide one
	SourceThreadID string    // owning post id for comments, empty for posts
}

// AnalysisResult is the full set of signals derived from a single TextItem.
// Every field has a defined default (neutral / false / empty) so a classifier
// failure never produces a partial result.
type AnalysisResult struct {
	OriginalText          string    `json:"original"`
	NormalizedText        string    `json:"normalized"`
	Language              string    `json:"language"`
	SentimentLabel        Sentiment `json:"label"`
	SentimentConfidence   float64   `json:"confidence,omitempty"`
	Toxic                 bool      `json:"toxic"`
	Respectful            bool      `json:"is_respectful"`
	MentionsLocation      string    `json:"mentions_location,omitempty"`
	DisclosesPersonalInfo bool      `json:"privacy_disclosure"`
	Misinformation        bool      `json:"misinformation_risk"`
	Timestamp             time.Time `json:"timestamp"`
	ItemType              ItemKind  `json:"type"`
}

// NewAnalysisResult returns a result with all signals at their documented
// defaults for the given item. Used directly for empty texts and as the base
// every extraction step fills in.
func NewAnalysisResult(item TextItem) AnalysisResult {
	return AnalysisResult{
		OriginalText:   item.RawText,
		NormalizedText: item.RawText,
		Language:       "en",
		SentimentLabel: SentimentNeutral,
		Respectful:     true,
		Timestamp:      item.CreatedAt,
		ItemType:       item.Kind,
	}
}
