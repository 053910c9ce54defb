package service

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/models"
)

// KindReport aggregates one action kind over the report window.
type KindReport struct {
	Attempts    int64   `json:"attempts"`
	Succeeded   int64   `json:"succeeded"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// TopicStat is one row of the topic breakdown.
type TopicStat struct {
	Topic     string `json:"topic"`
	Succeeded int64  `json:"succeeded"`
}

// WeeklyReport summarizes the last seven days of ledger activity.
type WeeklyReport struct {
	From            time.Time                        `json:"from"`
	To              time.Time                        `json:"to"`
	Kinds           map[models.ActionKind]KindReport `json:"kinds"`
	TopTopics       []TopicStat                      `json:"top_topics"`
	Recommendations []string                         `json:"recommendations"`
}

// Analytics computes reports and topic weights from the ledger tables.
type Analytics struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAnalytics(db *gorm.DB, logger *zap.Logger) *Analytics {
	return &Analytics{db: db, logger: logger}
}

type kindOutcomeRow struct {
	ActionKind models.ActionKind
	Outcome    models.Outcome
	N          int64
}

// WeeklyReport aggregates the trailing seven days and derives pacing
// recommendations from the observed volume.
func (a *Analytics) WeeklyReport(now time.Time) (*WeeklyReport, error) {
	now = now.UTC()
	from := now.AddDate(0, 0, -7)

	var rows []kindOutcomeRow
	err := a.db.Model(&models.LedgerEntry{}).
		Select("action_kind, outcome, COUNT(*) AS n").
		Where("created_at >= ? AND outcome <> ?", from, models.OutcomePending).
		Group("action_kind, outcome").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger: %w", err)
	}

	report := &WeeklyReport{
		From:  from,
		To:    now,
		Kinds: make(map[models.ActionKind]KindReport),
	}
	for _, row := range rows {
		kr := report.Kinds[row.ActionKind]
		switch row.Outcome {
		case models.OutcomeSucceeded:
			kr.Succeeded += row.N
			kr.Attempts += row.N
		case models.OutcomeFailed, models.OutcomeAbandoned:
			kr.Failed += row.N
			kr.Attempts += row.N
		case models.OutcomeSkipped:
			kr.Skipped += row.N
		}
		report.Kinds[row.ActionKind] = kr
	}
	for kind, kr := range report.Kinds {
		if kr.Attempts > 0 {
			kr.SuccessRate = float64(kr.Succeeded) / float64(kr.Attempts)
		}
		report.Kinds[kind] = kr
	}

	topics, err := a.topicBreakdown(from)
	if err != nil {
		return nil, err
	}
	report.TopTopics = topics
	report.Recommendations = recommend(report)
	return report, nil
}

func (a *Analytics) topicBreakdown(from time.Time) ([]TopicStat, error) {
	var stats []TopicStat
	err := a.db.Model(&models.LedgerEntry{}).
		Select("topic, COUNT(*) AS succeeded").
		Where("action_kind = ? AND outcome = ? AND created_at >= ? AND topic <> ''",
			models.ActionPost, models.OutcomeSucceeded, from).
		Group("topic").
		Order("succeeded DESC").
		Limit(5).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate topics: %w", err)
	}
	return stats, nil
}

// recommend applies fixed weekly-volume thresholds. The bands are wide on
// purpose; the point is to flag drift, not to tune pacing.
func recommend(r *WeeklyReport) []string {
	var recs []string
	posts := r.Kinds[models.ActionPost]
	connections := r.Kinds[models.ActionConnection]
	engagements := r.Kinds[models.ActionEngagement]

	switch {
	case posts.Succeeded < 3:
		recs = append(recs, "Posting volume is low; consider adding schedule slots.")
	case posts.Succeeded > 10:
		recs = append(recs, "Posting volume is high; consider fewer slots to avoid audience fatigue.")
	}
	switch {
	case connections.Succeeded < 5:
		recs = append(recs, "Few connection requests sent; add prospects or raise the daily cap.")
	case connections.Succeeded > 30:
		recs = append(recs, "Connection volume is high; slow down to stay under platform limits.")
	}
	if engagements.Succeeded < 10 {
		recs = append(recs, "Engagement is low; shorten the engagement interval or raise its cap.")
	}
	if posts.Attempts > 0 && posts.SuccessRate < 0.8 {
		recs = append(recs, "Post success rate is below 80%; check recent failures in the activity log.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Activity is within the expected bands; no changes suggested.")
	}
	return recs
}

// TopicWeights returns per-topic weights from the trailing thirty days of
// succeeded posts. Every topic gets a base weight so new topics are still
// eligible.
func (a *Analytics) TopicWeights(now time.Time) (map[string]float64, error) {
	from := now.UTC().AddDate(0, 0, -30)

	var stats []TopicStat
	err := a.db.Model(&models.LedgerEntry{}).
		Select("topic, COUNT(*) AS succeeded").
		Where("action_kind = ? AND outcome = ? AND created_at >= ? AND topic <> ''",
			models.ActionPost, models.OutcomeSucceeded, from).
		Group("topic").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute topic weights: %w", err)
	}

	weights := make(map[string]float64, len(stats))
	for _, s := range stats {
		weights[s.Topic] = 1 + float64(s.Succeeded)
	}
	return weights, nil
}

// FormatReport renders a report as plain text for the CLI.
func FormatReport(r *WeeklyReport) string {
	out := fmt.Sprintf("Weekly report %s - %s\n",
		r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))

	kinds := make([]models.ActionKind, 0, len(r.Kinds))
	for kind := range r.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		kr := r.Kinds[kind]
		out += fmt.Sprintf("  %-12s attempts=%d succeeded=%d failed=%d skipped=%d rate=%.0f%%\n",
			kind, kr.Attempts, kr.Succeeded, kr.Failed, kr.Skipped, kr.SuccessRate*100)
	}
	if len(r.TopTopics) > 0 {
		out += "Top topics:\n"
		for _, t := range r.TopTopics {
			out += fmt.Sprintf("  %s (%d)\n", t.Topic, t.Succeeded)
		}
	}
	out += "Recommendations:\n"
	for _, rec := range r.Recommendations {
		out += "  - " + rec + "\n"
	}
	return out
}
