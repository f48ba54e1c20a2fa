package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend records calls and returns canned results
type stubBackend struct {
	pred     Prediction
	err      error
	delay    time.Duration
	lastText atomic.Value

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Predict(ctx context.Context, _ Task, text string) (Prediction, error) {
	cur := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		top := b.maxInflight.Load()
		if cur <= top || b.maxInflight.CompareAndSwap(top, cur) {
			break
		}
	}

	b.lastText.Store(text)
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return Prediction{}, ctx.Err()
		}
	}
	return b.pred, b.err
}

func TestGateway_Classify(t *testing.T) {
	backend := &stubBackend{pred: Prediction{Label: LabelPositive, Confidence: 0.92}}
	gw := NewGateway(map[Task]Backend{TaskSentiment: backend}, 2)

	outcome := gw.Classify(context.Background(), TaskSentiment, "nice day")
	assert.Equal(t, StatusOK, outcome.Status)
	assert.Equal(t, LabelPositive, outcome.Label)
	assert.InDelta(t, 0.92, outcome.Confidence, 0.001)
	assert.True(t, outcome.OK())
}

func TestGateway_NoBackendConfigured(t *testing.T) {
	gw := NewGateway(map[Task]Backend{}, 2)

	outcome := gw.Classify(context.Background(), TaskToxicity, "anything")
	assert.Equal(t, StatusUnavailable, outcome.Status)
	assert.Empty(t, outcome.Label)
	assert.Contains(t, outcome.Reason, "no backend configured")
}

func TestGateway_FailureMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"timeout error", ErrTimeout, StatusTimeout},
		{"wrapped timeout", errors.Join(errors.New("call failed"), ErrTimeout), StatusTimeout},
		{"deadline exceeded", context.DeadlineExceeded, StatusTimeout},
		{"unavailable", ErrUnavailable, StatusUnavailable},
		{"unknown error", errors.New("boom"), StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{err: tt.err}
			gw := NewGateway(map[Task]Backend{TaskMisinfo: backend}, 1)

			outcome := gw.Classify(context.Background(), TaskMisinfo, "text")
			assert.Equal(t, tt.want, outcome.Status)
			assert.False(t, outcome.OK())
			assert.Empty(t, outcome.Label, "failed outcomes carry no label")
			assert.NotEmpty(t, outcome.Reason)
		})
	}
}

func TestGateway_TruncatesLongInput(t *testing.T) {
	backend := &stubBackend{pred: Prediction{Label: LabelNeutral, Confidence: 1}}
	gw := NewGateway(map[Task]Backend{TaskSentiment: backend}, 1)

	long := strings.Repeat("é", 3000) // multi-byte runes, cut must not split one
	gw.Classify(context.Background(), TaskSentiment, long)

	got, ok := backend.lastText.Load().(string)
	require.True(t, ok)
	assert.Equal(t, maxInputChars, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestGateway_ConcurrencyCap(t *testing.T) {
	backend := &stubBackend{pred: Prediction{Label: LabelNeutral, Confidence: 1}, delay: 20 * time.Millisecond}
	gw := NewGateway(map[Task]Backend{TaskSentiment: backend}, 3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := gw.Classify(context.Background(), TaskSentiment, "text")
			assert.Equal(t, StatusOK, outcome.Status)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, backend.maxInflight.Load(), int32(3))
}

func TestGateway_CanceledWhileWaiting(t *testing.T) {
	backend := &stubBackend{pred: Prediction{Label: LabelNeutral, Confidence: 1}}
	gw := NewGateway(map[Task]Backend{TaskSentiment: backend}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// slot acquisition fails on a dead context before the backend is touched
	require.NoError(t, gw.inflight.Acquire(context.Background(), 1))
	defer gw.inflight.Release(1)

	outcome := gw.Classify(ctx, TaskSentiment, "text")
	assert.Equal(t, StatusUnavailable, outcome.Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))
	assert.Equal(t, "", truncate("", 5))
}
