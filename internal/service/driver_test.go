package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/content"
	"github.com/cadencehq/cadence/internal/service/linkedin"
)

// fakeLedger keeps everything in memory with the same claim semantics as
// the postgres store.
type fakeLedger struct {
	nextID    uint
	succeeded map[string]bool
	pending   map[string]bool
	resolved  []*models.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		succeeded: make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

func ledgerKey(kind models.ActionKind, targetKey, windowKey string) string {
	return fmt.Sprintf("%s|%s|%s", kind, targetKey, windowKey)
}

func (l *fakeLedger) Claim(kind models.ActionKind, targetKey, windowKey, runID string, now time.Time) (*models.LedgerEntry, bool, error) {
	key := ledgerKey(kind, targetKey, windowKey)
	if l.succeeded[key] || l.pending[key] {
		return nil, false, nil
	}
	l.pending[key] = true
	l.nextID++
	return &models.LedgerEntry{
		ID:         l.nextID,
		ActionKind: kind,
		TargetKey:  targetKey,
		WindowKey:  windowKey,
		Outcome:    models.OutcomePending,
		RunID:      runID,
	}, true, nil
}

func (l *fakeLedger) resolve(entry *models.LedgerEntry, outcome models.Outcome) {
	key := ledgerKey(entry.ActionKind, entry.TargetKey, entry.WindowKey)
	delete(l.pending, key)
	entry.Outcome = outcome
	if outcome == models.OutcomeSucceeded {
		l.succeeded[key] = true
	}
	l.resolved = append(l.resolved, entry)
}

func (l *fakeLedger) RecordSuccess(entry *models.LedgerEntry, externalRef string) error {
	entry.ExternalRef = externalRef
	l.resolve(entry, models.OutcomeSucceeded)
	return nil
}

func (l *fakeLedger) RecordFailure(entry *models.LedgerEntry, errKind models.ErrorKind, msg string) error {
	entry.ErrorKind = errKind
	entry.Error = msg
	l.resolve(entry, models.OutcomeFailed)
	return nil
}

func (l *fakeLedger) RecordSkipped(entry *models.LedgerEntry, errKind models.ErrorKind) error {
	entry.ErrorKind = errKind
	l.resolve(entry, models.OutcomeSkipped)
	return nil
}

func (l *fakeLedger) HasSucceeded(kind models.ActionKind, targetKey, windowKey string) (bool, error) {
	return l.succeeded[ledgerKey(kind, targetKey, windowKey)], nil
}

func (l *fakeLedger) lastResolved() *models.LedgerEntry {
	if len(l.resolved) == 0 {
		return nil
	}
	return l.resolved[len(l.resolved)-1]
}

type fakeLimiter struct {
	allowed bool
	delay   time.Duration
	calls   int
}

func (f *fakeLimiter) Admit(kind models.ActionKind, now time.Time) (Admission, error) {
	f.calls++
	if !f.allowed {
		return Admission{}, nil
	}
	return Admission{Allowed: true, Delay: f.delay}, nil
}

type fakePosts struct {
	created   []*models.PostRecord
	succeeded int
	failed    int
}

func (f *fakePosts) CreatePending(item *models.ContentItem, ledgerEntryID uint) (*models.PostRecord, error) {
	rec := &models.PostRecord{LedgerEntryID: ledgerEntryID, Topic: item.Topic, Status: models.PostStatusPending}
	f.created = append(f.created, rec)
	return rec, nil
}

func (f *fakePosts) MarkSucceeded(rec *models.PostRecord, externalPostID string, at time.Time) error {
	f.succeeded++
	rec.Status = models.PostStatusSucceeded
	rec.ExternalPostID = externalPostID
	return nil
}

func (f *fakePosts) MarkFailed(rec *models.PostRecord, msg string) error {
	f.failed++
	rec.Status = models.PostStatusFailed
	return nil
}

type fakeGenerator struct {
	item       *models.ContentItem
	err        error
	calls      int
	article    *models.Article
	articleErr error
	topics     []string
	topicsErr  error
}

func (f *fakeGenerator) GeneratePost(ctx context.Context, topic string) (*models.ContentItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	item := *f.item
	item.Topic = topic
	return &item, nil
}

func (f *fakeGenerator) GenerateArticle(ctx context.Context, topic string) (*models.Article, error) {
	f.calls++
	if f.articleErr != nil {
		return nil, f.articleErr
	}
	article := *f.article
	article.Topic = topic
	return &article, nil
}

func (f *fakeGenerator) ExpandTopics(ctx context.Context, base string) ([]string, error) {
	if f.topicsErr != nil {
		return nil, f.topicsErr
	}
	return f.topics, nil
}

type fakePoster struct {
	postID       string
	err          error
	calls        int
	articleCalls int
}

func (f *fakePoster) Publish(ctx context.Context, item *models.ContentItem) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.postID, nil
}

func (f *fakePoster) PublishArticle(ctx context.Context, article *models.Article) (string, error) {
	f.articleCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.postID, nil
}

type driverFixture struct {
	driver    *ScheduleDriver
	ledger    *fakeLedger
	limiter   *fakeLimiter
	posts     *fakePosts
	generator *fakeGenerator
	poster    *fakePoster
}

func newDriverFixture(t *testing.T) *driverFixture {
	t.Helper()
	cfg := &config.Config{
		Content: config.ContentConfig{Topics: []string{"AI"}},
		Schedule: config.ScheduleConfig{
			Entries:   []config.ScheduleSlot{{Day: "monday", At: "09:15", Kind: "post"}},
			Tolerance: "2m",
			ClaimTTL:  "15m",
		},
	}
	schedule, err := ParseSchedule(cfg.Schedule.Entries)
	require.NoError(t, err)

	f := &driverFixture{
		ledger:  newFakeLedger(),
		limiter: &fakeLimiter{allowed: true, delay: time.Second},
		posts:   &fakePosts{},
		generator: &fakeGenerator{
			item:    &models.ContentItem{Title: "Title", Body: "Body"},
			article: &models.Article{Title: "Deep Dive", Content: "Long-form body"},
			topics:  []string{"AI agents in production"},
		},
		poster: &fakePoster{postID: "urn:li:share:42"},
	}
	f.driver = NewScheduleDriver(cfg, schedule, zap.NewNop(),
		f.ledger, f.limiter, f.posts, f.generator, f.poster, nil)
	f.driver.rand = rand.New(rand.NewSource(1))
	f.driver.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

// 2026-01-05 09:15 UTC is a Monday, matching the fixture's only slot.
var mondaySlot = time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

func TestRunPostsWhenSlotDue(t *testing.T) {
	f := newDriverFixture(t)

	outcome, err := f.driver.Run(context.Background(), mondaySlot.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, ResultPosted, outcome.Result)
	assert.Equal(t, "mon-09:15-post", outcome.SlotKey)
	assert.Equal(t, "2026-01-05", outcome.WindowKey)
	assert.Equal(t, "urn:li:share:42", outcome.ExternalPostID)
	assert.Equal(t, 1, f.poster.calls)
	assert.Equal(t, 1, f.posts.succeeded)

	entry := f.ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeSucceeded, entry.Outcome)
	assert.Equal(t, "urn:li:share:42", entry.ExternalRef)
}

func TestRunNoopOutsideTolerance(t *testing.T) {
	f := newDriverFixture(t)

	outcome, err := f.driver.Run(context.Background(), mondaySlot.Add(10*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, ResultNoop, outcome.Result)
	assert.Zero(t, f.generator.calls)
	assert.Zero(t, f.poster.calls)
}

func TestRunSecondInvocationIsNoop(t *testing.T) {
	f := newDriverFixture(t)

	first, err := f.driver.Run(context.Background(), mondaySlot)
	require.NoError(t, err)
	require.Equal(t, ResultPosted, first.Result)

	second, err := f.driver.Run(context.Background(), mondaySlot.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, second.Result)
	assert.Equal(t, 1, f.poster.calls, "the occurrence is posted exactly once")
}

func TestRunSkipsWhenBudgetExhausted(t *testing.T) {
	f := newDriverFixture(t)
	f.limiter.allowed = false

	outcome, err := f.driver.Run(context.Background(), mondaySlot)
	require.NoError(t, err, "an exhausted budget is not an error")

	assert.Equal(t, ResultSkipped, outcome.Result)
	assert.Zero(t, f.generator.calls, "no content is generated for a skipped action")
	assert.Zero(t, f.poster.calls)

	entry := f.ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeSkipped, entry.Outcome)
	assert.Equal(t, models.ErrKindRateLimit, entry.ErrorKind)
}

func TestRunGenerationFailureNeverCallsPoster(t *testing.T) {
	f := newDriverFixture(t)
	f.generator.err = &content.GenerationError{Reason: "empty response"}

	outcome, err := f.driver.Run(context.Background(), mondaySlot)
	require.Error(t, err)

	assert.Equal(t, ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrKindGeneration, outcome.ErrorKind)
	assert.Zero(t, f.poster.calls)

	entry := f.ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeFailed, entry.Outcome)
	assert.Equal(t, models.ErrKindGeneration, entry.ErrorKind)
}

func TestRunAuthFailureRecordedNotRetried(t *testing.T) {
	f := newDriverFixture(t)
	f.poster.err = &linkedin.AuthError{Status: 401, Message: "expired token"}

	outcome, err := f.driver.Run(context.Background(), mondaySlot)
	require.Error(t, err)

	assert.Equal(t, ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrKindAuth, outcome.ErrorKind)
	assert.Equal(t, 1, f.poster.calls, "auth failures are never retried within a run")
	assert.Equal(t, 1, f.posts.failed)
}

func TestRunTransientFailureLeavesSlotRetriable(t *testing.T) {
	f := newDriverFixture(t)
	f.poster.err = &linkedin.TransientError{Status: 503, Message: "upstream down"}

	outcome, err := f.driver.Run(context.Background(), mondaySlot)
	require.Error(t, err)
	require.Equal(t, models.ErrKindTransient, outcome.ErrorKind)

	// The failure resolved the claim, so the next trigger can try again
	f.poster.err = nil
	retry, err := f.driver.Run(context.Background(), mondaySlot.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ResultPosted, retry.Result)
}

func TestRunTopicExpansionFailureFallsBack(t *testing.T) {
	f := newDriverFixture(t)
	f.generator.topicsErr = errors.New("boom")

	outcome, err := f.driver.Run(context.Background(), mondaySlot)
	require.NoError(t, err)

	assert.Equal(t, ResultPosted, outcome.Result)
	assert.Equal(t, "AI", outcome.Topic, "base topic is used when expansion fails")
}

func TestPublishArticleOncePerDay(t *testing.T) {
	f := newDriverFixture(t)

	outcome, err := f.driver.PublishArticle(context.Background(), mondaySlot, "Go concurrency")
	require.NoError(t, err)

	assert.Equal(t, ResultPosted, outcome.Result)
	assert.Equal(t, "article", outcome.SlotKey)
	assert.Equal(t, "2026-01-05", outcome.WindowKey)
	assert.Equal(t, "Go concurrency", outcome.Topic)
	assert.Equal(t, 1, f.poster.articleCalls)
	assert.Equal(t, 1, f.posts.succeeded)

	second, err := f.driver.PublishArticle(context.Background(), mondaySlot.Add(2*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, second.Result)
	assert.Equal(t, 1, f.poster.articleCalls, "at most one article per day")
}

func TestPublishArticleEmptyTopicUsesConfigured(t *testing.T) {
	f := newDriverFixture(t)

	outcome, err := f.driver.PublishArticle(context.Background(), mondaySlot, "")
	require.NoError(t, err)

	assert.Equal(t, ResultPosted, outcome.Result)
	assert.Equal(t, "AI", outcome.Topic)
}

func TestPublishArticleGenerationFailureNeverCallsPoster(t *testing.T) {
	f := newDriverFixture(t)
	f.generator.articleErr = &content.GenerationError{Reason: "empty response"}

	outcome, err := f.driver.PublishArticle(context.Background(), mondaySlot, "Go")
	require.Error(t, err)

	assert.Equal(t, ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrKindGeneration, outcome.ErrorKind)
	assert.Zero(t, f.poster.articleCalls)

	entry := f.ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeFailed, entry.Outcome)
}

func TestPublishArticleSkipsWhenBudgetExhausted(t *testing.T) {
	f := newDriverFixture(t)
	f.limiter.allowed = false

	outcome, err := f.driver.PublishArticle(context.Background(), mondaySlot, "Go")
	require.NoError(t, err)

	assert.Equal(t, ResultSkipped, outcome.Result)
	assert.Zero(t, f.poster.articleCalls)

	entry := f.ledger.lastResolved()
	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeSkipped, entry.Outcome)
	assert.Equal(t, models.ErrKindRateLimit, entry.ErrorKind)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, models.ErrKindGeneration,
		classifyError(&content.GenerationError{Reason: "x"}))
	assert.Equal(t, models.ErrKindAuth,
		classifyError(&linkedin.AuthError{Status: 401}))
	assert.Equal(t, models.ErrKindTransient,
		classifyError(&linkedin.TransientError{Status: 500}))
	assert.Equal(t, models.ErrKindInternal,
		classifyError(errors.New("anything else")))

	wrapped := fmt.Errorf("publish: %w", &linkedin.AuthError{Status: 401})
	assert.Equal(t, models.ErrKindAuth, classifyError(wrapped))
}
