package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/wellscope/pkg/domain"
	"github.com/umputun/wellscope/pkg/report"
)

// ErrNotFound indicates the requested report doesn't exist
var ErrNotFound = errors.New("report not found")

// Reports handles report persistence and the pending/processing/completed/failed lifecycle
type Reports struct {
	db *sqlx.DB
}

// NewReports creates a new report repository
func NewReports(db *sqlx.DB) *Reports {
	return &Reports{db: db}
}

// reportRow is the database representation of a report
type reportRow struct {
	ID              string      `db:"id"`
	UserID          string      `db:"user_id"`
	Token           string      `db:"token"`
	MaxItems        int         `db:"max_items"`
	Status          string      `db:"status"`
	Profile         profileSQL  `db:"profile"`
	Insights        insightsSQL `db:"insights"`
	Metrics         metricsSQL  `db:"metrics"`
	Recommendations stringsSQL  `db:"recommendations"`
	Error           string      `db:"error"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

// profileSQL is a JSON-encoded profile column, empty string for no profile
type profileSQL struct {
	profile *domain.Profile
}

// Value implements driver.Valuer for database storage
func (p profileSQL) Value() (driver.Value, error) {
	if p.profile == nil {
		return "", nil
	}
	data, err := json.Marshal(p.profile)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval
func (p *profileSQL) Scan(value interface{}) error {
	data, ok := scanBytes(value)
	if !ok || len(data) == 0 {
		p.profile = nil
		return nil
	}
	p.profile = &domain.Profile{}
	return json.Unmarshal(data, p.profile)
}

// insightsSQL is a JSON array of analysis results for SQL operations
type insightsSQL []domain.AnalysisResult

// Value implements driver.Valuer for database storage
func (s insightsSQL) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval
func (s *insightsSQL) Scan(value interface{}) error {
	data, ok := scanBytes(value)
	if !ok || len(data) == 0 {
		*s = insightsSQL{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// metricsSQL is a JSON array of metrics for SQL operations
type metricsSQL []domain.Metric

// Value implements driver.Valuer for database storage
func (s metricsSQL) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval
func (s *metricsSQL) Scan(value interface{}) error {
	data, ok := scanBytes(value)
	if !ok || len(data) == 0 {
		*s = metricsSQL{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// stringsSQL is a JSON array of strings for SQL operations
type stringsSQL []string

// Value implements driver.Valuer for database storage
func (s stringsSQL) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval
func (s *stringsSQL) Scan(value interface{}) error {
	data, ok := scanBytes(value)
	if !ok || len(data) == 0 {
		*s = stringsSQL{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// scanBytes normalizes a scanned column value to raw bytes
func scanBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

func (r *reportRow) toDomain() *domain.Report {
	return &domain.Report{
		ID:              r.ID,
		UserID:          r.UserID,
		Token:           r.Token,
		MaxItems:        r.MaxItems,
		Status:          domain.ReportStatus(r.Status),
		Profile:         r.Profile.profile,
		Insights:        r.Insights,
		Metrics:         r.Metrics,
		Recommendations: r.Recommendations,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Create inserts a new report, defaulting status to pending
func (r *Reports) Create(ctx context.Context, rep *domain.Report) error {
	if rep.Status == "" {
		rep.Status = domain.ReportPending
	}
	now := time.Now().UTC()
	rep.CreatedAt = now
	rep.UpdatedAt = now

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `
			INSERT INTO reports (id, user_id, token, max_items, status, profile, insights, metrics, recommendations, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.ExecContext(ctx, query,
			rep.ID, rep.UserID, rep.Token, rep.MaxItems, string(rep.Status),
			profileSQL{profile: rep.Profile}, insightsSQL(rep.Insights), metricsSQL(rep.Metrics),
			stringsSQL(rep.Recommendations), rep.Error, rep.CreatedAt, rep.UpdatedAt)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("create report: %w", err)}
		}
		return nil
	})
}

// Get retrieves a report by ID
func (r *Reports) Get(ctx context.Context, id string) (*domain.Report, error) {
	var row reportRow
	err := r.db.GetContext(ctx, &row, "SELECT * FROM reports WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return row.toDomain(), nil
}

// List retrieves reports, newest first, optionally filtered by status
func (r *Reports) List(ctx context.Context, status domain.ReportStatus, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT * FROM reports"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	reports := make([]*domain.Report, len(rows))
	for i := range rows {
		reports[i] = rows[i].toDomain()
	}
	return reports, nil
}

// ClaimPending atomically moves up to limit pending reports to processing and
// returns them. Each claim is conditional on the row still being pending, so
// concurrent dispatchers never run the same report twice.
func (r *Reports) ClaimPending(ctx context.Context, limit int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = 1
	}

	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		"SELECT id FROM reports WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?",
		string(domain.ReportPending), limit)
	if err != nil {
		return nil, fmt.Errorf("select pending reports: %w", err)
	}

	var claimed []domain.Report
	for _, id := range ids {
		res, err := r.db.ExecContext(ctx,
			"UPDATE reports SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(domain.ReportProcessing), time.Now().UTC(), id, string(domain.ReportPending))
		if err != nil {
			return nil, fmt.Errorf("claim report %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim report %s: %w", id, err)
		}
		if affected == 0 {
			continue // someone else claimed it
		}

		rep, err := r.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load claimed report %s: %w", id, err)
		}
		claimed = append(claimed, *rep)
	}

	return claimed, nil
}

// Complete stores a finished run and moves the report to completed. The token
// is cleared, a terminal report never needs it again.
func (r *Reports) Complete(ctx context.Context, id string, result *report.Result) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `
			UPDATE reports
			SET status = ?, profile = ?, insights = ?, metrics = ?, recommendations = ?,
			    error = '', token = '', updated_at = ?
			WHERE id = ?
		`
		userID := ""
		if result.Profile != nil {
			userID = result.Profile.ID
		}
		if userID != "" {
			query = `
				UPDATE reports
				SET status = ?, profile = ?, insights = ?, metrics = ?, recommendations = ?,
				    error = '', token = '', updated_at = ?, user_id = ?
				WHERE id = ?
			`
		}

		args := []interface{}{
			string(domain.ReportCompleted),
			profileSQL{profile: result.Profile}, insightsSQL(result.Insights),
			metricsSQL(result.Metrics), stringsSQL(result.Recommendations),
			time.Now().UTC(),
		}
		if userID != "" {
			args = append(args, userID)
		}
		args = append(args, id)

		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("complete report: %w", err)}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return &criticalError{err: fmt.Errorf("complete report: %w", err)}
		}
		if affected == 0 {
			return &criticalError{err: ErrNotFound}
		}
		return nil
	})
}

// Fail moves the report to failed with the given reason
func (r *Reports) Fail(ctx context.Context, id, reason string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		res, err := r.db.ExecContext(ctx,
			"UPDATE reports SET status = ?, error = ?, token = '', updated_at = ? WHERE id = ?",
			string(domain.ReportFailed), reason, time.Now().UTC(), id)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("fail report: %w", err)}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return &criticalError{err: fmt.Errorf("fail report: %w", err)}
		}
		if affected == 0 {
			return &criticalError{err: ErrNotFound}
		}
		return nil
	})
}

// Stats returns report counts per lifecycle state
func (r *Reports) Stats(ctx context.Context) (map[domain.ReportStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM reports GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("report stats: %w", err)
	}
	defer rows.Close()

	stats := map[domain.ReportStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan report stats: %w", err)
		}
		stats[domain.ReportStatus(status)] = count
	}
	return stats, rows.Err()
}
