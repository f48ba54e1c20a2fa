package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/wellscope/pkg/config"
)

// OpenAIBackend classifies text with an OpenAI-compatible chat model, one
// request per call constrained to the task's label vocabulary. The underlying
// client is created once on first use and shared across workers.
type OpenAIBackend struct {
	cfg config.OpenAIConfig

	once      sync.Once
	client    *openai.Client
	initCount atomic.Int32 // observed by tests to verify exactly-once init
}

// NewOpenAIBackend creates a backend over an OpenAI-compatible API
func NewOpenAIBackend(cfg config.OpenAIConfig) *OpenAIBackend {
	return &OpenAIBackend{cfg: cfg}
}

// Name returns the backend identifier
func (b *OpenAIBackend) Name() string { return "openai" }

// getClient lazily builds the shared client, race-safe under concurrent first use
func (b *OpenAIBackend) getClient() *openai.Client {
	b.once.Do(func() {
		clientConfig := openai.DefaultConfig(b.cfg.APIKey)
		if b.cfg.Endpoint != "" {
			clientConfig.BaseURL = b.cfg.Endpoint
		}
		b.client = openai.NewClientWithConfig(clientConfig)
		b.initCount.Add(1)
	})
	return b.client
}

// task prompts, each forces a strict JSON answer in the canonical vocabulary
var taskPrompts = map[Task]string{
	TaskSentiment: `Classify the sentiment of the user's text. Respond with JSON only: {"label": "positive"|"neutral"|"negative", "confidence": 0.0-1.0}`,
	TaskToxicity:  `Decide whether the user's text is toxic (insults, harassment, threats, slurs). Respond with JSON only: {"label": "toxic"|"clean", "confidence": 0.0-1.0}`,
	TaskMisinfo:   `Decide whether the user's text spreads likely misinformation (debunked claims, conspiracy narratives, fake cures). Respond with JSON only: {"label": "misinfo"|"legit", "confidence": 0.0-1.0}`,
	TaskEntities:  `Extract entities from the user's text. Respond with JSON only: {"locations": ["..."], "emails": ["..."], "phones": ["..."]}. Use empty arrays when nothing is found.`,
}

// Predict runs one task as a single chat completion
func (b *OpenAIBackend) Predict(ctx context.Context, task Task, text string) (Prediction, error) {
	prompt, ok := taskPrompts[task]
	if !ok {
		return Prediction{}, fmt.Errorf("unsupported task %s", task)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	resp, err := b.getClient().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.cfg.Model,
		Temperature: float32(b.cfg.Temperature),
		MaxTokens:   b.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return Prediction{}, fmt.Errorf("llm %s request: %w", task, ErrTimeout)
		}
		return Prediction{}, fmt.Errorf("llm %s request: %v: %w", task, err, ErrUnavailable)
	}
	if len(resp.Choices) == 0 {
		return Prediction{}, fmt.Errorf("no response from llm: %w", ErrUnavailable)
	}

	content := resp.Choices[0].Message.Content
	if task == TaskEntities {
		return parseLLMEntities(content)
	}
	return parseLLMLabel(task, content)
}

// parseLLMLabel extracts the {"label","confidence"} object from a model answer
func parseLLMLabel(task Task, content string) (Prediction, error) {
	var parsed struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return Prediction{}, fmt.Errorf("malformed llm %s answer: %w", task, ErrUnavailable)
	}
	return Prediction{Label: MapLabel(task, parsed.Label), Confidence: parsed.Confidence}, nil
}

// parseLLMEntities extracts the entity lists from a model answer
func parseLLMEntities(content string) (Prediction, error) {
	var parsed struct {
		Locations []string `json:"locations"`
		Emails    []string `json:"emails"`
		Phones    []string `json:"phones"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return Prediction{}, fmt.Errorf("malformed llm entities answer: %w", ErrUnavailable)
	}

	pred := Prediction{Confidence: 1}
	for _, loc := range parsed.Locations {
		pred.Entities = append(pred.Entities, Entity{Group: EntityLocation, Word: loc})
	}
	for _, email := range parsed.Emails {
		pred.Entities = append(pred.Entities, Entity{Group: EntityEmail, Word: email})
	}
	for _, phone := range parsed.Phones {
		pred.Entities = append(pred.Entities, Entity{Group: EntityPhone, Word: phone})
	}
	return pred, nil
}

// extractJSON cuts the first JSON object out of a possibly chatty answer
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return content
	}
	return content[start : end+1]
}
