package classifier

import (
	"context"
	"errors"
	"log"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"
)

// Task identifies one classification capability
type Task string

// classification tasks
const (
	TaskSentiment Task = "sentiment"
	TaskToxicity  Task = "toxicity"
	TaskMisinfo   Task = "misinfo"
	TaskEntities  Task = "entities"
)

// maxInputChars is the hard cap applied to every text before a backend call,
// prevents unbounded latency and memory on pathological inputs
const maxInputChars = 2000

// sentinel errors backends use to signal typed failures
var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrTimeout     = errors.New("backend timed out")
)

// Status is the typed result state of one backend call
type Status string

// outcome statuses
const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
)

// Entity is one extracted entity, Group is LOC, EMAIL or PHONE
type Entity struct {
	Group string
	Word  string
}

// entity groups
const (
	EntityLocation = "LOC"
	EntityEmail    = "EMAIL"
	EntityPhone    = "PHONE"
)

// Prediction is a raw backend response before outcome mapping
type Prediction struct {
	Label      string
	Confidence float64
	Entities   []Entity
}

// Outcome is the typed result of one classification call. Non-ok outcomes
// carry no label; callers map them to the signal's default. The gateway never
// returns an error, this is the whole failure surface.
type Outcome struct {
	Status     Status
	Label      string
	Confidence float64
	Entities   []Entity
	Reason     string
}

// OK reports whether the call produced a usable prediction
func (o Outcome) OK() bool { return o.Status == StatusOK }

// Backend is a concrete classifier implementation for one or more tasks
type Backend interface {
	Predict(ctx context.Context, task Task, text string) (Prediction, error)
	Name() string
}

// Gateway provides a uniform interface over the configured backends with a
// bounded number of in-flight calls. One backend per task, selected at
// construction, no mid-call fallback.
type Gateway struct {
	backends map[Task]Backend
	inflight *semaphore.Weighted
}

// NewGateway creates a gateway over per-task backends with the given
// in-flight cap
func NewGateway(backends map[Task]Backend, maxConcurrent int64) *Gateway {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gateway{backends: backends, inflight: semaphore.NewWeighted(maxConcurrent)}
}

// Classify runs one task against its configured backend. Every failure path
// resolves to a typed non-ok Outcome, logged and never raised.
func (g *Gateway) Classify(ctx context.Context, task Task, text string) Outcome {
	backend, ok := g.backends[task]
	if !ok {
		return Outcome{Status: StatusUnavailable, Reason: "no backend configured for " + string(task)}
	}

	text = truncate(text, maxInputChars)

	if err := g.inflight.Acquire(ctx, 1); err != nil {
		return Outcome{Status: StatusUnavailable, Reason: "canceled while waiting for slot"}
	}
	defer g.inflight.Release(1)

	pred, err := backend.Predict(ctx, task, text)
	if err != nil {
		outcome := failureOutcome(err)
		log.Printf("[WARN] %s backend failed for %s task: %v", backend.Name(), task, err)
		return outcome
	}

	return Outcome{Status: StatusOK, Label: pred.Label, Confidence: pred.Confidence, Entities: pred.Entities}
}

// failureOutcome maps a backend error to its typed outcome
func failureOutcome(err error) Outcome {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Outcome{Status: StatusTimeout, Reason: err.Error()}
	case errors.Is(err, ErrUnavailable):
		return Outcome{Status: StatusUnavailable, Reason: err.Error()}
	default:
		return Outcome{Status: StatusError, Reason: err.Error()}
	}
}

// truncate cuts text to at most n runes without splitting a code point
func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
