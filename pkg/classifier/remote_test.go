package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/wellscope/pkg/config"
)

func remoteConfig(url string) config.RemoteConfig {
	return config.RemoteConfig{
		Endpoint:      url,
		Token:         "test-token",
		Timeout:       time.Second,
		WarmupBackoff: 10 * time.Millisecond,
	}
}

func TestRemoteBackend_Classification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[[{"label":"LABEL_2","score":0.91},{"label":"LABEL_0","score":0.05},{"label":"LABEL_1","score":0.04}]]`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	pred, err := backend.Predict(context.Background(), TaskSentiment, "what a great day")
	require.NoError(t, err)
	assert.Equal(t, LabelPositive, pred.Label)
	assert.InDelta(t, 0.91, pred.Confidence, 0.001)
}

func TestRemoteBackend_FlatResponseShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"label":"YES","score":0.77},{"label":"NO","score":0.23}]`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	pred, err := backend.Predict(context.Background(), TaskToxicity, "some text")
	require.NoError(t, err)
	assert.Equal(t, LabelToxic, pred.Label)
	assert.InDelta(t, 0.77, pred.Confidence, 0.001)
}

func TestRemoteBackend_WarmingRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
			return
		}
		w.Write([]byte(`[[{"label":"LABEL_1","score":0.8}]]`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	pred, err := backend.Predict(context.Background(), TaskSentiment, "text")
	require.NoError(t, err)
	assert.Equal(t, LabelNeutral, pred.Label)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteBackend_StillWarmingAfterRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"Model is currently loading"}`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	_, err := backend.Predict(context.Background(), TaskSentiment, "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
}

func TestRemoteBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	_, err := backend.Predict(context.Background(), TaskSentiment, "text")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteBackend_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	_, err := backend.Predict(context.Background(), TaskSentiment, "text")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRemoteBackend_Entities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities", r.URL.Path)
		w.Write([]byte(`[{"entity_group":"GPE","word":"Paris","score":0.99},{"entity_group":"LOC","word":"Tokyo","score":0.95}]`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(remoteConfig(server.URL))
	pred, err := backend.Predict(context.Background(), TaskEntities, "Paris and Tokyo")
	require.NoError(t, err)
	require.Len(t, pred.Entities, 2)
	assert.Equal(t, Entity{Group: EntityLocation, Word: "Paris"}, pred.Entities[0], "GPE normalized to LOC")
	assert.Equal(t, Entity{Group: EntityLocation, Word: "Tokyo"}, pred.Entities[1])
}

func TestRemoteBackend_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := remoteConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	backend := NewRemoteBackend(cfg)

	_, err := backend.Predict(context.Background(), TaskSentiment, "text")
	assert.ErrorIs(t, err, ErrTimeout)
}
