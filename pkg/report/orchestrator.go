package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/wellscope/pkg/domain"
	"github.com/umputun/wellscope/pkg/feed"
)

// ErrNoToken rejects requests without a feed access token, surfaced
// immediately and never retried
var ErrNoToken = errors.New("feed token is required")

// Feed is the paginated social feed the orchestrator walks
type Feed interface {
	Profile(ctx context.Context, token string) (*domain.Profile, error)
	Posts(ctx context.Context, token, cursor string) (*feed.PostsPage, error)
	Comments(ctx context.Context, token, postID, cursor string) (*feed.CommentsPage, error)
}

// Extractor analyzes one text item
type Extractor interface {
	Extract(ctx context.Context, item domain.TextItem) domain.AnalysisResult
}

// Aggregator reduces analysis results into the metrics report
type Aggregator interface {
	Aggregate(ctx context.Context, items []domain.AnalysisResult) domain.MetricsReport
}

// Config holds orchestrator limits
type Config struct {
	MaxItems     int // hard cap on items analyzed per run
	CommentDepth int // maximum nesting depth for comment threads
	Workers      int // bounded worker pool size for per-item analysis
}

// Orchestrator walks a user's feed, analyzes every post and comment through
// the extractor with a bounded worker pool, and aggregates the results.
// Per-run state is confined to one Analyze call.
type Orchestrator struct {
	feed       Feed
	extractor  Extractor
	aggregator Aggregator
	cfg        Config
}

// Request describes one analysis run
type Request struct {
	Token    string
	MaxItems int // 0 uses the configured default
}

// Result is the complete outcome of one run
type Result struct {
	Profile         *domain.Profile
	Insights        []domain.AnalysisResult
	Metrics         []domain.Metric
	Recommendations []string
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(f Feed, extractor Extractor, aggregator Aggregator, cfg Config) *Orchestrator {
	if cfg.MaxItems == 0 {
		cfg.MaxItems = 200
	}
	if cfg.CommentDepth == 0 {
		cfg.CommentDepth = 3
	}
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	return &Orchestrator{feed: f, extractor: extractor, aggregator: aggregator, cfg: cfg}
}

// Analyze runs one full report: walk the feed, analyze items, aggregate.
// Classifier failures degrade signals silently; only input validation and
// total feed failures surface as errors.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, ErrNoToken
	}

	maxItems := req.MaxItems
	if maxItems <= 0 || maxItems > o.cfg.MaxItems {
		maxItems = o.cfg.MaxItems
	}

	profile, err := o.feed.Profile(ctx, req.Token)
	if err != nil {
		if errors.Is(err, feed.ErrAuth) {
			return nil, fmt.Errorf("fetch profile: %w", err)
		}
		lgr.Printf("[WARN] profile fetch failed, report continues without it: %v", err)
	}

	items, err := o.collectItems(ctx, req.Token, maxItems)
	if err != nil {
		return nil, err
	}

	insights := o.analyzeItems(ctx, items)
	metrics := o.aggregator.Aggregate(ctx, insights)

	return &Result{
		Profile:         profile,
		Insights:        insights,
		Metrics:         metrics.Metrics,
		Recommendations: metrics.Recommendations,
	}, nil
}

// collectItems walks the paginated posts feed and each post's comment tree,
// capped at maxItems. A transient mid-walk failure truncates the walk rather
// than failing the run; a failure before anything was collected fails it.
func (o *Orchestrator) collectItems(ctx context.Context, token string, maxItems int) ([]domain.TextItem, error) {
	var items []domain.TextItem

	cursor := ""
	for len(items) < maxItems {
		page, err := o.feed.Posts(ctx, token, cursor)
		if err != nil {
			if len(items) == 0 || errors.Is(err, feed.ErrAuth) {
				return nil, fmt.Errorf("walk posts: %w", err)
			}
			lgr.Printf("[WARN] posts walk truncated after %d items: %v", len(items), err)
			return items, nil
		}

		for _, post := range page.Posts {
			if len(items) >= maxItems {
				break
			}
			items = append(items, domain.TextItem{
				ID:        post.ID,
				RawText:   post.Message,
				Kind:      domain.KindPost,
				CreatedAt: post.CreatedAt,
			})

			comments, err := o.collectComments(ctx, token, post.ID, maxItems-len(items))
			if err != nil {
				lgr.Printf("[WARN] comments for post %s skipped: %v", post.ID, err)
				continue
			}
			items = append(items, comments...)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return items, nil
}

// collectComments walks one post's comment pages and flattens the nested
// replies, bounded by depth and the remaining item budget
func (o *Orchestrator) collectComments(ctx context.Context, token, postID string, budget int) ([]domain.TextItem, error) {
	var items []domain.TextItem

	cursor := ""
	for len(items) < budget {
		page, err := o.feed.Comments(ctx, token, postID, cursor)
		if err != nil {
			return items, err
		}

		for _, comment := range page.Comments {
			items = o.flattenComment(items, comment, postID, budget, o.cfg.CommentDepth)
			if len(items) >= budget {
				break
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return items, nil
}

// flattenComment appends a comment and its replies depth-first
func (o *Orchestrator) flattenComment(items []domain.TextItem, comment feed.Comment, postID string, budget, depth int) []domain.TextItem {
	if len(items) >= budget || depth <= 0 {
		return items
	}
	if comment.Message != "" {
		items = append(items, domain.TextItem{
			ID:             comment.ID,
			RawText:        comment.Message,
			Kind:           domain.KindComment,
			CreatedAt:      comment.CreatedAt,
			SourceThreadID: postID,
		})
	}
	for _, reply := range comment.Replies {
		items = o.flattenComment(items, reply, postID, budget, depth-1)
	}
	return items
}

// analyzeItems runs the extractor over all items with a bounded worker pool.
// Completion order doesn't matter, the aggregation is order-insensitive.
func (o *Orchestrator) analyzeItems(ctx context.Context, items []domain.TextItem) []domain.AnalysisResult {
	insights := make([]domain.AnalysisResult, 0, len(items))

	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, item := range items {
		wg.Add(1)
		go func(it domain.TextItem) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			result := o.extractor.Extract(ctx, it)
			mu.Lock()
			insights = append(insights, result)
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return insights
}
