package normalize

import (
	"context"
	"html"
	"log"
	"strings"

	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/forPelevin/gomoji"
	"github.com/microcosm-cc/bluemonday"

	"github.com/umputun/wellscope/pkg/domain"
)

// Translator converts text to English. Implementations may fail freely,
// translation is an enhancement, never a blocking dependency.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, error)
}

// Result is the normalized view of one raw text
type Result struct {
	Clean          string
	Language       string
	EmojiOnly      bool
	EmojiSentiment domain.Sentiment // meaningful only when EmojiOnly
}

// Normalizer prepares raw post text for classification: strips markup,
// handles emoji, detects language and optionally translates to English.
type Normalizer struct {
	translator Translator // nil disables translation
	sanitizer  *bluemonday.Policy
}

// New creates a normalizer; translator may be nil
func New(translator Translator) *Normalizer {
	return &Normalizer{translator: translator, sanitizer: bluemonday.StrictPolicy()}
}

// emoji sets deciding sentiment for emoji-only texts, stored without
// variation selectors to match the stripped input
var (
	positiveEmojis = []string{"😍", "🥰", "❤", "😂", "😊", "👍", "🥹", "🤩", "🤣"}
	negativeEmojis = []string{"😢", "💔", "😠", "😡", "😞", "😤", "🤥"}
)

// Normalize cleans text and reports language and emoji shortcuts.
// Idempotent on already-normalized plain text.
func (n *Normalizer) Normalize(ctx context.Context, text string) Result {
	// strip any markup, then restore entities the sanitizer escaped
	clean := html.UnescapeString(n.sanitizer.Sanitize(text))

	// variation selectors corrupt exact-match emoji lookups
	clean = strings.ReplaceAll(clean, "\ufe0f", "")
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return Result{Language: "en", EmojiSentiment: domain.SentimentNeutral}
	}

	if isEmojiOnly(clean) {
		return Result{
			Clean:          clean,
			Language:       "en",
			EmojiOnly:      true,
			EmojiSentiment: emojiSentiment(clean),
		}
	}

	// expand emoji to descriptive words so language and sentiment models
	// see text, not glyphs
	expanded := gomoji.ReplaceEmojisWithFunc(clean, func(e gomoji.Emoji) string {
		return " " + strings.ReplaceAll(e.Slug, "-", " ") + " "
	})
	expanded = collapseSpaces(expanded)

	lang := detectLanguage(expanded)

	if lang != "en" && n.translator != nil {
		translated, err := n.translator.Translate(ctx, expanded, lang)
		if err != nil {
			log.Printf("[DEBUG] translation failed, keeping original text: %v", err)
		} else if translated != "" {
			expanded = collapseSpaces(translated)
		}
	}

	return Result{Clean: expanded, Language: lang, EmojiSentiment: domain.SentimentNeutral}
}

// isEmojiOnly reports whether every non-whitespace code point is an emoji
func isEmojiOnly(text string) bool {
	if !gomoji.ContainsEmoji(text) {
		return false
	}
	return strings.TrimSpace(gomoji.RemoveEmojis(text)) == ""
}

// emojiSentiment decides the label from fixed emoji sets, ties and
// no-matches fall to neutral
func emojiSentiment(text string) domain.Sentiment {
	pos, neg := 0, 0
	for _, e := range positiveEmojis {
		pos += strings.Count(text, e)
	}
	for _, e := range negativeEmojis {
		neg += strings.Count(text, e)
	}
	switch {
	case pos > neg:
		return domain.SentimentPositive
	case neg > pos:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// detectLanguage is best-effort, ambiguous or short texts default to English
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "en"
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return "en"
}

// collapseSpaces squeezes runs of whitespace into single spaces
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
