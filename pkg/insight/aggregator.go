package insight

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/umputun/wellscope/pkg/config"
	"github.com/umputun/wellscope/pkg/domain"
)

// metric titles, fixed across deployments
const (
	TitleHappyPosts  = "Happy Posts"
	TitleGoodHabits  = "Good Posting Habits"
	TitlePrivacyCare = "Privacy Care"
	TitleRespectful  = "Being Respectful"
)

// Summary carries the counters the recommendation strategies work from
type Summary struct {
	Total      int
	Posts      int
	NightPosts int
	Positive   int
	Toxic      int
	Respectful int
	Misinfo    int
	Locations  int
	Disclosed  int
}

// RecommendationStrategy produces short advice from aggregated metrics.
// Implementations never fail, a broken generator degrades to no advice.
type RecommendationStrategy interface {
	Generate(ctx context.Context, summary Summary, metrics []domain.Metric) []string
}

// Aggregator reduces a sequence of analysis results into four bounded
// metrics and recommendations. Pure reduction over a multiset, insensitive
// to item order.
type Aggregator struct {
	loc        *time.Location
	nightStart int
	nightEnd   int
	curve      string
	strategy   RecommendationStrategy
	maxRecs    int
}

// NewAggregator creates an aggregator. The timezone is a fixed configuration
// value, a documented simplification, not derived per user.
func NewAggregator(cfg config.AnalysisConfig, strategy RecommendationStrategy) (*Aggregator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return &Aggregator{
		loc:        loc,
		nightStart: cfg.NightStartHour,
		nightEnd:   cfg.NightEndHour,
		curve:      cfg.HabitsCurve,
		strategy:   strategy,
		maxRecs:    cfg.MaxRecs,
	}, nil
}

// Aggregate computes the metrics report over the given results. Defined for
// the empty sequence, never divides by zero.
func (a *Aggregator) Aggregate(ctx context.Context, items []domain.AnalysisResult) domain.MetricsReport {
	summary := a.summarize(items)
	total := summary.Total
	if total < 1 {
		total = 1 // defined behavior for an empty sequence
	}

	happy := pct(summary.Positive, total)
	habits := a.habitsScore(summary)
	// inverse metrics count the good items and round once, so an exact half
	// like 87.5 lands on 88, not 87
	privacy := pct(total-summary.Locations, total)
	respect := pct(summary.Respectful, total)

	metrics := []domain.Metric{
		{Title: TitleHappyPosts, Value: happy, Label: band(happy)},
		{Title: TitleGoodHabits, Value: habits, Label: band(habits)},
		{Title: TitlePrivacyCare, Value: privacy, Label: band(privacy)},
		{Title: TitleRespectful, Value: respect, Label: band(respect)},
	}

	recs := a.strategy.Generate(ctx, summary, metrics)
	if len(recs) > a.maxRecs {
		recs = recs[:a.maxRecs]
	}

	return domain.MetricsReport{Metrics: metrics, Recommendations: recs}
}

// summarize walks the results once collecting every counter
func (a *Aggregator) summarize(items []domain.AnalysisResult) Summary {
	s := Summary{Total: len(items)}
	for _, item := range items {
		if item.SentimentLabel == domain.SentimentPositive {
			s.Positive++
		}
		if item.Toxic {
			s.Toxic++
		}
		if item.Respectful {
			s.Respectful++
		}
		if item.Misinformation {
			s.Misinfo++
		}
		if item.MentionsLocation != "" {
			s.Locations++
		}
		if item.DisclosesPersonalInfo {
			s.Disclosed++
		}
		if item.ItemType == domain.KindPost {
			s.Posts++
			if !item.Timestamp.IsZero() && a.isNightHour(item.Timestamp.In(a.loc).Hour()) {
				s.NightPosts++
			}
		}
	}
	return s
}

// isNightHour checks the [start, end) night window, wrapping midnight
func (a *Aggregator) isNightHour(hour int) bool {
	if a.nightStart > a.nightEnd {
		return hour >= a.nightStart || hour < a.nightEnd
	}
	return hour >= a.nightStart && hour < a.nightEnd
}

// habitsScore is the inverse night-posting fraction. Zero posts means there
// is no bad habit to penalize. The curve is a tunable policy, the simple
// ratio is canonical.
func (a *Aggregator) habitsScore(s Summary) int {
	if s.Posts == 0 {
		return 100
	}
	if a.curve == "stepped" {
		ratio := float64(s.NightPosts) / float64(s.Posts)
		switch {
		case ratio == 0:
			return 100
		case ratio <= 0.10:
			return 90
		case ratio <= 0.25:
			return 75
		case ratio <= 0.50:
			return 50
		default:
			return 25
		}
	}
	return pct(s.Posts-s.NightPosts, s.Posts)
}

// pct is the rounded percentage, half away from zero
func pct(count, total int) int {
	return int(math.Round(100 * float64(count) / float64(total)))
}

// band maps a metric value to its display label
func band(value int) string {
	switch {
	case value >= 80:
		return "excellent"
	case value >= 50:
		return "fair"
	default:
		return "needs attention"
	}
}
