// Package stats collects the daily product counters from Postgres and
// renders them for Discord.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the slice of pgxpool.Pool the collector needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx pool against the configured database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Report holds one day's counters.
type Report struct {
	Date             time.Time
	NewAIConnectors  int
	NewGitConnectors int
	ReviewsCreated   int
	NewUsers         int
}

// Git connectors live in integration_tokens.
var dailyCounts = []struct {
	query string
	field func(*Report) *int
}{
	{"SELECT COUNT(*) FROM ai_connectors WHERE DATE(created_at) = $1", func(r *Report) *int { return &r.NewAIConnectors }},
	{"SELECT COUNT(*) FROM integration_tokens WHERE DATE(created_at) = $1", func(r *Report) *int { return &r.NewGitConnectors }},
	{"SELECT COUNT(*) FROM reviews WHERE DATE(created_at) = $1", func(r *Report) *int { return &r.ReviewsCreated }},
	{"SELECT COUNT(*) FROM users WHERE DATE(created_at) = $1", func(r *Report) *int { return &r.NewUsers }},
}

// Collect runs the daily count queries for day.
func Collect(ctx context.Context, db Querier, day time.Time) (Report, error) {
	report := Report{Date: day}
	date := day.Format("2006-01-02")
	for _, count := range dailyCounts {
		if err := db.QueryRow(ctx, count.query, date).Scan(count.field(&report)); err != nil {
			return Report{}, fmt.Errorf("count query %q: %w", count.query, err)
		}
	}
	return report, nil
}

// RenderMarkdown formats the report as an aligned two-column markdown
// table headed by the report date.
func (r Report) RenderMarkdown() string {
	rows := [][2]string{
		{"New AI Connectors", fmt.Sprintf("%d", r.NewAIConnectors)},
		{"New Git Connectors", fmt.Sprintf("%d", r.NewGitConnectors)},
		{"Reviews Created", fmt.Sprintf("%d", r.ReviewsCreated)},
		{"New Users", fmt.Sprintf("%d", r.NewUsers)},
	}

	headers := [2]string{"Metric", "Count"}
	widths := [2]int{len(headers[0]), len(headers[1])}
	for _, row := range rows {
		for i := range row {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily Stats Report for %s\n", r.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "| %-*s | %-*s |\n", widths[0], headers[0], widths[1], headers[1])
	fmt.Fprintf(&b, "|%s|%s|\n", strings.Repeat("-", widths[0]+2), strings.Repeat("-", widths[1]+2))
	for _, row := range rows {
		fmt.Fprintf(&b, "| %-*s | %-*s |\n", widths[0], row[0], widths[1], row[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
