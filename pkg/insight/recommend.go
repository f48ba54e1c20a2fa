package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/wellscope/pkg/config"
	"github.com/umputun/wellscope/pkg/domain"
)

// TemplateStrategy picks one sentence per metric from fixed threshold bands
type TemplateStrategy struct{}

// NewTemplateStrategy creates the template-based recommendation strategy
func NewTemplateStrategy() *TemplateStrategy { return &TemplateStrategy{} }

// Generate returns one templated sentence per metric, at most four
func (s *TemplateStrategy) Generate(_ context.Context, _ Summary, metrics []domain.Metric) []string {
	recs := make([]string, 0, 4)
	for _, m := range metrics {
		switch m.Title {
		case TitleHappyPosts:
			switch {
			case m.Value >= 80:
				recs = append(recs, "Your interactions are highly positive.")
			case m.Value >= 50:
				recs = append(recs, "Some interactions could be more positive.")
			default:
				recs = append(recs, "Work on improving positivity in your posts.")
			}
		case TitleGoodHabits:
			if m.Value >= 80 {
				recs = append(recs, "Healthy posting schedule.")
			} else {
				recs = append(recs, "Consider reducing late-night activity.")
			}
		case TitlePrivacyCare:
			if m.Value >= 80 {
				recs = append(recs, "Minimal location info shared.")
			} else {
				recs = append(recs, "You share location frequently, adjust privacy settings.")
			}
		case TitleRespectful:
			switch {
			case m.Value >= 80:
				recs = append(recs, "Excellent respect in interactions.")
			case m.Value >= 50:
				recs = append(recs, "Some comments may be disrespectful.")
			default:
				recs = append(recs, "Improve your tone and respectfulness.")
			}
		}
	}
	if len(recs) > 4 {
		recs = recs[:4]
	}
	return recs
}

// LLMStrategy delegates recommendation writing to an OpenAI-compatible model.
// Fails closed: any error yields an empty list, never a pipeline failure.
type LLMStrategy struct {
	client *openai.Client
	cfg    config.OpenAIConfig
}

// NewLLMStrategy creates the generative recommendation strategy
func NewLLMStrategy(cfg config.OpenAIConfig) *LLMStrategy {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &LLMStrategy{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

const recSystemPrompt = `You are a digital wellbeing coach. Given a user's social media metrics, write short actionable recommendations.
Respond with JSON only: {"recommendations": ["...", "..."]}. At most 4 items, each a single sentence under 120 characters, supportive in tone.`

// Generate asks the model for advice based on the metric values
func (s *LLMStrategy) Generate(ctx context.Context, summary Summary, metrics []domain.Metric) []string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Metrics (0-100, higher is better):\n")
	for _, m := range metrics {
		fmt.Fprintf(&sb, "- %s: %d\n", m.Title, m.Value)
	}
	fmt.Fprintf(&sb, "Analyzed items: %d (%d posts, %d at night). Toxic: %d, misinformation: %d, location mentions: %d, personal info disclosures: %d.\n",
		summary.Total, summary.Posts, summary.NightPosts, summary.Toxic, summary.Misinfo, summary.Locations, summary.Disclosed)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: float32(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: recSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		log.Printf("[WARN] recommendation generation failed: %v", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		log.Printf("[WARN] recommendation generation returned no choices")
		return nil
	}

	content := resp.Choices[0].Message.Content
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		log.Printf("[WARN] recommendation response has no json object")
		return nil
	}

	var parsed struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		log.Printf("[WARN] can't parse recommendation response: %v", err)
		return nil
	}

	if len(parsed.Recommendations) > 4 {
		parsed.Recommendations = parsed.Recommendations[:4]
	}
	return parsed.Recommendations
}
