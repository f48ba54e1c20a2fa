package domain

import "time"

// Metric is one aggregated wellbeing score, always in [0,100]
type Metric struct {
	Title string `json:"title"`
	Value int    `json:"value"`
	Label string `json:"label,omitempty"`
}

// MetricsReport aggregates a sequence of analysis results into four bounded
// metrics and a capped set of recommendations. Always derived, never mutated.
type MetricsReport struct {
	Metrics         []Metric `json:"metrics"`
	Recommendations []string `json:"recommendations"`
}

// Profile holds basic info about the account being analyzed
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// ReportStatus is the lifecycle state of a stored report
type ReportStatus string

// report lifecycle states
const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Report is the persisted outcome of one analysis run. Token is kept for the
// async worker and never serialized to API responses.
type Report struct {
	ID              string           `json:"report_id"`
	UserID          string           `json:"user_id,omitempty"`
	Token           string           `json:"-"`
	MaxItems        int              `json:"max_items,omitempty"`
	Status          ReportStatus     `json:"status"`
	Profile         *Profile         `json:"profile,omitempty"`
	Insights        []AnalysisResult `json:"insights"`
	Metrics         []Metric         `json:"metrics"`
	Recommendations []string         `json:"recommendations"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
