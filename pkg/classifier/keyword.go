package classifier

import (
	"context"
	"regexp"
	"strings"
)

// maintained word/phrase lists for the heuristic backend and for the
// extractor's recall-first overrides
var (
	positiveWords = []string{"love", "great", "happy", "awesome", "amazing", "wonderful", "thanks", "congrats", "beautiful"}
	negativeWords = []string{"sad", "angry", "terrible", "awful", "horrible", "worst", "disappointed", "cry"}

	toxicWords = []string{"hate", "kill", "trash", "stupid", "idiot", "dumb", "fuck", "bitch", "shit"}

	misinfoPhrases = []string{"flat earth", "fake news", "miracle cure", "hoax", "5g causes covid"}

	// fixed city/place gazetteer, the fallback when entity extraction yields nothing
	gazetteer = []string{"colombo", "kandy", "galle", "new york", "paris", "london", "tokyo", "sri lanka", "street", "road", "city"}
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	phoneRe = regexp.MustCompile(`\b\d{10}\b`)
)

// ContainsToxic reports whether text matches the maintained toxic-word set,
// case-insensitive substring match
func ContainsToxic(text string) bool {
	lowered := strings.ToLower(text)
	for _, word := range toxicWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

// GazetteerLocation returns the first gazetteer entry mentioned in text, or
// empty when none match
func GazetteerLocation(text string) string {
	lowered := strings.ToLower(text)
	for _, place := range gazetteer {
		if strings.Contains(lowered, place) {
			return place
		}
	}
	return ""
}

// FindEmails extracts email addresses from text
func FindEmails(text string) []string { return emailRe.FindAllString(text, -1) }

// FindPhones extracts 10-digit phone numbers from text
func FindPhones(text string) []string { return phoneRe.FindAllString(text, -1) }

// KeywordBackend is the rule-based classifier. It never fails and needs no
// network, the deployment fallback for constrained hosts.
type KeywordBackend struct{}

// NewKeywordBackend creates the rule-based backend
func NewKeywordBackend() *KeywordBackend { return &KeywordBackend{} }

// Name returns the backend identifier
func (b *KeywordBackend) Name() string { return "keyword" }

// Predict classifies text with word lists and regular expressions
func (b *KeywordBackend) Predict(_ context.Context, task Task, text string) (Prediction, error) {
	lowered := strings.ToLower(text)

	switch task {
	case TaskSentiment:
		pos, neg := countMatches(lowered, positiveWords), countMatches(lowered, negativeWords)
		switch {
		case pos > neg:
			return Prediction{Label: LabelPositive, Confidence: 0.7}, nil
		case neg > pos:
			return Prediction{Label: LabelNegative, Confidence: 0.7}, nil
		default:
			return Prediction{Label: LabelNeutral, Confidence: 0.7}, nil
		}

	case TaskToxicity:
		if ContainsToxic(text) {
			return Prediction{Label: LabelToxic, Confidence: 0.9}, nil
		}
		return Prediction{Label: LabelClean, Confidence: 0.9}, nil

	case TaskMisinfo:
		for _, phrase := range misinfoPhrases {
			if strings.Contains(lowered, phrase) {
				return Prediction{Label: LabelMisinfo, Confidence: 0.8}, nil
			}
		}
		return Prediction{Label: LabelLegit, Confidence: 0.8}, nil

	case TaskEntities:
		pred := Prediction{Confidence: 1}
		if place := GazetteerLocation(text); place != "" {
			pred.Entities = append(pred.Entities, Entity{Group: EntityLocation, Word: place})
		}
		for _, email := range FindEmails(text) {
			pred.Entities = append(pred.Entities, Entity{Group: EntityEmail, Word: email})
		}
		for _, phone := range FindPhones(text) {
			pred.Entities = append(pred.Entities, Entity{Group: EntityPhone, Word: phone})
		}
		return pred, nil
	}

	return Prediction{Label: LabelNeutral, Confidence: 0}, nil
}

// countMatches counts how many words from the list appear in lowered text
func countMatches(lowered string, words []string) int {
	n := 0
	for _, word := range words {
		if strings.Contains(lowered, word) {
			n++
		}
	}
	return n
}
