package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/wellscope/pkg/config"
	"github.com/umputun/wellscope/pkg/domain"
)

func allMetrics(happy, habits, privacy, respect int) []domain.Metric {
	return []domain.Metric{
		{Title: TitleHappyPosts, Value: happy},
		{Title: TitleGoodHabits, Value: habits},
		{Title: TitlePrivacyCare, Value: privacy},
		{Title: TitleRespectful, Value: respect},
	}
}

func TestTemplateStrategy_HighScores(t *testing.T) {
	s := NewTemplateStrategy()

	recs := s.Generate(context.Background(), Summary{}, allMetrics(90, 85, 95, 88))
	require.Len(t, recs, 4)
	assert.Contains(t, recs, "Your interactions are highly positive.")
	assert.Contains(t, recs, "Healthy posting schedule.")
	assert.Contains(t, recs, "Minimal location info shared.")
	assert.Contains(t, recs, "Excellent respect in interactions.")
}

func TestTemplateStrategy_LowScores(t *testing.T) {
	s := NewTemplateStrategy()

	recs := s.Generate(context.Background(), Summary{}, allMetrics(30, 40, 20, 10))
	require.Len(t, recs, 4)
	assert.Contains(t, recs, "Work on improving positivity in your posts.")
	assert.Contains(t, recs, "Consider reducing late-night activity.")
	assert.Contains(t, recs, "You share location frequently, adjust privacy settings.")
	assert.Contains(t, recs, "Improve your tone and respectfulness.")
}

func TestTemplateStrategy_MidBands(t *testing.T) {
	s := NewTemplateStrategy()

	recs := s.Generate(context.Background(), Summary{}, allMetrics(60, 60, 60, 60))
	assert.Contains(t, recs, "Some interactions could be more positive.")
	assert.Contains(t, recs, "Some comments may be disrespectful.")
}

func TestTemplateStrategy_NeverExceedsFour(t *testing.T) {
	s := NewTemplateStrategy()

	metrics := append(allMetrics(10, 10, 10, 10), domain.Metric{Title: TitleHappyPosts, Value: 10})
	recs := s.Generate(context.Background(), Summary{}, metrics)
	assert.LessOrEqual(t, len(recs), 4)
}

func TestLLMStrategy_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"recommendations": ["Post more positive updates.", "Sleep before midnight."]}`,
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	s := NewLLMStrategy(config.OpenAIConfig{Endpoint: server.URL + "/v1", APIKey: "key", Model: "gpt-4o-mini", Timeout: time.Second})
	recs := s.Generate(context.Background(), Summary{Total: 10}, allMetrics(70, 80, 90, 60))
	require.Len(t, recs, 2)
	assert.Equal(t, "Post more positive updates.", recs[0])
}

func TestLLMStrategy_CapsAtFour(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"recommendations": ["a", "b", "c", "d", "e", "f"]}`,
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	s := NewLLMStrategy(config.OpenAIConfig{Endpoint: server.URL + "/v1", APIKey: "key", Model: "gpt-4o-mini", Timeout: time.Second})
	recs := s.Generate(context.Background(), Summary{}, allMetrics(50, 50, 50, 50))
	assert.Len(t, recs, 4)
}

func TestLLMStrategy_FailsClosed(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		s := NewLLMStrategy(config.OpenAIConfig{Endpoint: server.URL + "/v1", APIKey: "key", Model: "gpt-4o-mini", Timeout: time.Second})
		assert.Nil(t, s.Generate(context.Background(), Summary{}, allMetrics(50, 50, 50, 50)))
	})

	t.Run("non-json answer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": "here is some advice without structure"}},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		s := NewLLMStrategy(config.OpenAIConfig{Endpoint: server.URL + "/v1", APIKey: "key", Model: "gpt-4o-mini", Timeout: time.Second})
		assert.Nil(t, s.Generate(context.Background(), Summary{}, allMetrics(50, 50, 50, 50)))
	})
}
