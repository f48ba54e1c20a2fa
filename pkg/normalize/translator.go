package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/umputun/wellscope/pkg/config"
)

// HTTPTranslator calls a LibreTranslate-compatible API
type HTTPTranslator struct {
	client   *http.Client
	endpoint string
}

// NewHTTPTranslator creates a translator for the configured endpoint,
// returns nil when translation is not configured
func NewHTTPTranslator(cfg config.NormalizerConfig) *HTTPTranslator {
	if cfg.TranslationEndpoint == "" {
		return nil
	}
	return &HTTPTranslator{
		client: &http.Client{
			Timeout: cfg.TranslationTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint: cfg.TranslationEndpoint,
	}
}

// Translate converts text from sourceLang to English
func (t *HTTPTranslator) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	payload, err := json.Marshal(map[string]string{"q": text, "source": sourceLang, "target": "en"})
	if err != nil {
		return "", fmt.Errorf("marshal translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call translation api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected translation status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read translation response: %w", err)
	}

	var parsed struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse translation response: %w", err)
	}
	return parsed.TranslatedText, nil
}
