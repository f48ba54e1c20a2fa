package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/wellscope/pkg/domain"
	"github.com/umputun/wellscope/pkg/feed"
	"github.com/umputun/wellscope/pkg/report"
	"github.com/umputun/wellscope/pkg/repository"
)

// mockStore is an in-memory ReportStore
type mockStore struct {
	mu        sync.Mutex
	reports   map[string]*domain.Report
	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{reports: map[string]*domain.Report{}}
}

func (s *mockStore) Create(_ context.Context, rep *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	rep.CreatedAt = time.Now()
	s.reports[rep.ID] = rep
	return nil
}

func (s *mockStore) Get(_ context.Context, id string) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rep, ok := s.reports[id]; ok {
		return rep, nil
	}
	return nil, repository.ErrNotFound
}

func (s *mockStore) List(_ context.Context, status domain.ReportStatus, limit int) ([]*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*domain.Report
	for _, rep := range s.reports {
		if status == "" || rep.Status == status {
			res = append(res, rep)
		}
		if len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (s *mockStore) Stats(_ context.Context) (map[domain.ReportStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[domain.ReportStatus]int{}
	for _, rep := range s.reports {
		stats[rep.Status]++
	}
	return stats, nil
}

// mockRunner answers synchronous analysis requests
type mockRunner struct {
	result *report.Result
	err    error
}

func (r *mockRunner) Analyze(_ context.Context, req report.Request) (*report.Result, error) {
	if req.Token == "" {
		return nil, report.ErrNoToken
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func startTestServer(t *testing.T, store ReportStore, runner Runner) *httptest.Server {
	t.Helper()
	srv := New(Config{Listen: ":0", Timeout: 5 * time.Second}, store, runner, "test", false)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestServer_CreateReport(t *testing.T) {
	store := newMockStore()
	ts := startTestServer(t, store, &mockRunner{})

	resp := postJSON(t, ts.URL+"/api/v1/reports", map[string]interface{}{"token": "tok", "max_items": 20})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["report_id"])
	assert.Equal(t, "pending", body["status"])

	stored, err := store.Get(context.Background(), body["report_id"])
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.Token)
	assert.Equal(t, 20, stored.MaxItems)
	assert.Equal(t, domain.ReportPending, stored.Status)
}

func TestServer_CreateReportValidation(t *testing.T) {
	ts := startTestServer(t, newMockStore(), &mockRunner{})

	t.Run("missing token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/v1/reports", map[string]interface{}{"max_items": 5})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("negative max_items", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/v1/reports", map[string]interface{}{"token": "t", "max_items": -1})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("garbage body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/reports", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_CreateReportStoreFailure(t *testing.T) {
	store := newMockStore()
	store.createErr = errors.New("disk full")
	ts := startTestServer(t, store, &mockRunner{})

	resp := postJSON(t, ts.URL+"/api/v1/reports", map[string]interface{}{"token": "tok"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_GetReport(t *testing.T) {
	store := newMockStore()
	store.reports["r1"] = &domain.Report{
		ID:     "r1",
		Token:  "should-never-leak",
		Status: domain.ReportCompleted,
		Metrics: []domain.Metric{
			{Title: "Happy Posts", Value: 70, Label: "fair"},
		},
	}
	ts := startTestServer(t, store, &mockRunner{})

	resp, err := http.Get(ts.URL + "/api/v1/reports/r1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "r1", body["report_id"])
	assert.Equal(t, "completed", body["status"])
	assert.NotContains(t, body, "token", "access token never serialized")

	_, hasToken := body["Token"]
	assert.False(t, hasToken)
}

func TestServer_GetReportNotFound(t *testing.T) {
	ts := startTestServer(t, newMockStore(), &mockRunner{})

	resp, err := http.Get(ts.URL + "/api/v1/reports/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListReports(t *testing.T) {
	store := newMockStore()
	store.reports["r1"] = &domain.Report{ID: "r1", Status: domain.ReportPending}
	store.reports["r2"] = &domain.Report{ID: "r2", Status: domain.ReportCompleted}
	ts := startTestServer(t, store, &mockRunner{})

	resp, err := http.Get(ts.URL + "/api/v1/reports?status=completed")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Reports []map[string]interface{} `json:"reports"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)

	t.Run("invalid status", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/reports?status=bogus")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/reports?limit=zero")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_AnalyzeSync(t *testing.T) {
	runner := &mockRunner{result: &report.Result{
		Profile:         &domain.Profile{ID: "u1", Name: "Jo"},
		Metrics:         []domain.Metric{{Title: "Happy Posts", Value: 80, Label: "excellent"}},
		Recommendations: []string{"Your interactions are highly positive."},
	}}
	ts := startTestServer(t, newMockStore(), runner)

	resp := postJSON(t, ts.URL+"/api/v1/analyze", map[string]interface{}{"token": "tok"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Profile *domain.Profile `json:"profile"`
		Metrics []domain.Metric `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Profile)
	assert.Equal(t, "Jo", body.Profile.Name)
	require.Len(t, body.Metrics, 1)
	assert.Equal(t, 80, body.Metrics[0].Value)
}

func TestServer_AnalyzeErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		ts := startTestServer(t, newMockStore(), &mockRunner{})
		resp := postJSON(t, ts.URL+"/api/v1/analyze", map[string]interface{}{})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		runner := &mockRunner{err: fmt.Errorf("fetch profile: %w", feed.ErrAuth)}
		ts := startTestServer(t, newMockStore(), runner)
		resp := postJSON(t, ts.URL+"/api/v1/analyze", map[string]interface{}{"token": "expired"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("internal failure", func(t *testing.T) {
		runner := &mockRunner{err: errors.New("feed exploded")}
		ts := startTestServer(t, newMockStore(), runner)
		resp := postJSON(t, ts.URL+"/api/v1/analyze", map[string]interface{}{"token": "tok"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestServer_Status(t *testing.T) {
	store := newMockStore()
	store.reports["r1"] = &domain.Report{ID: "r1", Status: domain.ReportCompleted}
	ts := startTestServer(t, store, &mockRunner{})

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	reports, ok := body["reports"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, reports["completed"])
}

func TestServer_Ping(t *testing.T) {
	ts := startTestServer(t, newMockStore(), &mockRunner{})

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
