package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/umputun/wellscope/pkg/config"
)

// RemoteBackend calls a hosted inference API, one model route per task.
// The API accepts {"inputs": text} and responds with label/score pairs for
// classification tasks and entity groups for the entities task.
type RemoteBackend struct {
	client        *http.Client
	endpoint      string
	token         string
	warmupBackoff time.Duration
}

// NewRemoteBackend creates a backend for the hosted inference API
func NewRemoteBackend(cfg config.RemoteConfig) *RemoteBackend {
	return &RemoteBackend{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint:      strings.TrimSuffix(cfg.Endpoint, "/"),
		token:         cfg.Token,
		warmupBackoff: cfg.WarmupBackoff,
	}
}

// Name returns the backend identifier
func (b *RemoteBackend) Name() string { return "remote" }

// Predict runs one task against the inference API. A "model warming up"
// response gets exactly one retry after a fixed backoff before surfacing
// a timeout.
func (b *RemoteBackend) Predict(ctx context.Context, task Task, text string) (Prediction, error) {
	body, warming, err := b.call(ctx, task, text)
	if warming {
		select {
		case <-time.After(b.warmupBackoff):
		case <-ctx.Done():
			return Prediction{}, fmt.Errorf("canceled during warmup wait: %w", ErrTimeout)
		}
		body, warming, err = b.call(ctx, task, text)
		if warming {
			return Prediction{}, fmt.Errorf("model still warming up: %w", ErrTimeout)
		}
	}
	if err != nil {
		return Prediction{}, err
	}

	if task == TaskEntities {
		return parseEntities(body)
	}
	return parseClassification(task, body)
}

// call performs one HTTP round trip, reporting whether the model asked for a
// warmup retry
func (b *RemoteBackend) call(ctx context.Context, task Task, text string) (body []byte, warming bool, err error) {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", b.endpoint, task)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, false, fmt.Errorf("call %s: %w", task, ErrTimeout)
		}
		return nil, false, fmt.Errorf("call %s: %v: %w", task, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, false, fmt.Errorf("read response: %v: %w", err, ErrUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusServiceUnavailable && isWarming(body):
		return nil, true, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, false, fmt.Errorf("status %d from %s: %w", resp.StatusCode, task, ErrUnavailable)
	default:
		return nil, false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, task)
	}
}

// isWarming detects the "model is loading" response shape
func isWarming(body []byte) bool {
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "loading") || strings.Contains(msg, "warming")
}

// scoredLabel is one label/score pair from a classification response
type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// parseClassification reads label/score pairs, tolerating both the nested
// and flat response shapes, and maps the top label to the canonical vocabulary
func parseClassification(task Task, body []byte) (Prediction, error) {
	var nested [][]scoredLabel
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		top := best(nested[0])
		return Prediction{Label: MapLabel(task, top.Label), Confidence: top.Score}, nil
	}

	var flat []scoredLabel
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		top := best(flat)
		return Prediction{Label: MapLabel(task, top.Label), Confidence: top.Score}, nil
	}

	return Prediction{}, fmt.Errorf("malformed %s response: %w", task, ErrUnavailable)
}

// best picks the highest-scored candidate
func best(candidates []scoredLabel) scoredLabel {
	top := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > top.Score {
			top = c
		}
	}
	return top
}

// parseEntities reads the token-classification response shape
func parseEntities(body []byte) (Prediction, error) {
	var raw []struct {
		Group string  `json:"entity_group"`
		Word  string  `json:"word"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Prediction{}, fmt.Errorf("malformed entities response: %w", ErrUnavailable)
	}

	pred := Prediction{Confidence: 1}
	for _, e := range raw {
		group := e.Group
		if group == "GPE" { // some NER models emit GPE for places
			group = EntityLocation
		}
		pred.Entities = append(pred.Entities, Entity{Group: group, Word: e.Word})
	}
	return pred, nil
}
