package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/content"
	"github.com/cadencehq/cadence/internal/service/linkedin"
)

// ContentGenerator produces content via the external AI service.
type ContentGenerator interface {
	GeneratePost(ctx context.Context, topic string) (*models.ContentItem, error)
	GenerateArticle(ctx context.Context, topic string) (*models.Article, error)
	ExpandTopics(ctx context.Context, base string) ([]string, error)
}

// SocialPoster submits a content item and returns the platform's durable
// post id.
type SocialPoster interface {
	Publish(ctx context.Context, item *models.ContentItem) (string, error)
	PublishArticle(ctx context.Context, article *models.Article) (string, error)
}

// TopicWeigher biases topic selection toward topics that performed well.
// Optional; without one all topics are equally likely.
type TopicWeigher interface {
	TopicWeights(now time.Time) (map[string]float64, error)
}

// articleTargetKey is the ledger target shared by all article publications;
// paired with the UTC day window it enforces one article per day.
const articleTargetKey = "article"

type Result string

const (
	ResultPosted  Result = "posted"
	ResultNoop    Result = "noop"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// ActionOutcome summarizes what one invocation did.
type ActionOutcome struct {
	RunID          string            `json:"run_id"`
	Kind           models.ActionKind `json:"kind"`
	Result         Result            `json:"result"`
	SlotKey        string            `json:"slot_key,omitempty"`
	WindowKey      string            `json:"window_key,omitempty"`
	Topic          string            `json:"topic,omitempty"`
	ExternalPostID string            `json:"external_post_id,omitempty"`
	ErrorKind      models.ErrorKind  `json:"error_kind,omitempty"`
}

// ScheduleDriver maps one external trigger to zero-or-one due posting
// actions. Every invocation may be a fresh process, so all dedup and budget
// decisions go through the persisted ledger and counters, never through
// in-memory state.
type ScheduleDriver struct {
	cfg       *config.Config
	schedule  *Schedule
	logger    *zap.Logger
	ledger    Ledger
	limiter   RateLimiter
	posts     Posts
	generator ContentGenerator
	poster    SocialPoster
	weigher   TopicWeigher
	rand      *rand.Rand
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewScheduleDriver(
	cfg *config.Config,
	schedule *Schedule,
	logger *zap.Logger,
	ledger Ledger,
	limiter RateLimiter,
	posts Posts,
	generator ContentGenerator,
	poster SocialPoster,
	weigher TopicWeigher,
) *ScheduleDriver {
	return &ScheduleDriver{
		cfg:       cfg,
		schedule:  schedule,
		logger:    logger,
		ledger:    ledger,
		limiter:   limiter,
		posts:     posts,
		generator: generator,
		poster:    poster,
		weigher:   weigher,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     sleepContext,
	}
}

// Run evaluates the schedule at now and performs the first due, unclaimed
// posting action. It never retries within the invocation: the next external
// trigger is the retry mechanism.
func (d *ScheduleDriver) Run(ctx context.Context, now time.Time) (*ActionOutcome, error) {
	now = now.UTC()
	outcome := &ActionOutcome{
		RunID:  uuid.NewString(),
		Kind:   models.ActionPost,
		Result: ResultNoop,
	}
	logger := d.logger.With(zap.String("run_id", outcome.RunID))

	due := d.schedule.Due(now, d.cfg.Schedule.ToleranceDuration())
	if len(due) == 0 {
		logger.Info("No schedule entry due", zap.Time("now", now))
		return outcome, nil
	}

	for _, entry := range due {
		if entry.Kind != models.ActionPost {
			// Engagement and connection actions run on their own triggers
			continue
		}

		slotKey := entry.SlotKey()
		windowKey := entry.WindowKey(now)
		outcome.SlotKey = slotKey
		outcome.WindowKey = windowKey

		done, err := d.ledger.HasSucceeded(models.ActionPost, slotKey, windowKey)
		if err != nil {
			outcome.Result = ResultFailed
			outcome.ErrorKind = models.ErrKindInternal
			return outcome, err
		}
		if done {
			logger.Info("Occurrence already posted, nothing to do",
				zap.String("slot", slotKey),
				zap.String("window", windowKey))
			continue
		}

		claim, claimed, err := d.ledger.Claim(models.ActionPost, slotKey, windowKey, outcome.RunID, now)
		if err != nil {
			outcome.Result = ResultFailed
			outcome.ErrorKind = models.ErrKindInternal
			return outcome, err
		}
		if !claimed {
			logger.Info("Occurrence claimed by another invocation",
				zap.String("slot", slotKey),
				zap.String("window", windowKey))
			continue
		}

		return d.executePost(ctx, logger, outcome, claim, now)
	}

	return outcome, nil
}

func (d *ScheduleDriver) executePost(ctx context.Context, logger *zap.Logger, outcome *ActionOutcome, claim *models.LedgerEntry, now time.Time) (*ActionOutcome, error) {
	admission, err := d.limiter.Admit(models.ActionPost, now)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}
	if !admission.Allowed {
		// Local cap reached: skip silently, this is budget working as intended
		logger.Info("Rate limit reached, skipping action", zap.String("slot", outcome.SlotKey))
		if err := d.ledger.RecordSkipped(claim, models.ErrKindRateLimit); err != nil {
			logger.Error("Failed to record skipped outcome", zap.Error(err))
		}
		outcome.Result = ResultSkipped
		return outcome, nil
	}

	topic := d.pickTopic(now)
	if candidates, err := d.generator.ExpandTopics(ctx, topic); err != nil {
		logger.Warn("Topic expansion failed, using base topic",
			zap.String("topic", topic),
			zap.Error(err))
	} else if len(candidates) > 0 {
		topic = candidates[d.rand.Intn(len(candidates))]
	}
	claim.Topic = topic
	outcome.Topic = topic

	item, err := d.generator.GeneratePost(ctx, topic)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = classifyError(err)
		d.recordFailure(logger, claim, outcome.ErrorKind, err)
		return outcome, err
	}

	rec, err := d.posts.CreatePending(item, claim.ID)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}

	// Randomized pre-call pause: no mechanical timing signature
	if err := d.sleep(ctx, admission.Delay); err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}

	postID, err := d.poster.Publish(ctx, item)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = classifyError(err)
		if markErr := d.posts.MarkFailed(rec, err.Error()); markErr != nil {
			logger.Error("Failed to mark post record failed", zap.Error(markErr))
		}
		d.recordFailure(logger, claim, outcome.ErrorKind, err)
		return outcome, err
	}

	if err := d.posts.MarkSucceeded(rec, postID, now); err != nil {
		logger.Error("Failed to mark post record succeeded", zap.Error(err))
	}
	if err := d.ledger.RecordSuccess(claim, postID); err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		return outcome, err
	}

	logger.Info("Post published",
		zap.String("slot", outcome.SlotKey),
		zap.String("topic", topic),
		zap.String("post_id", postID))

	outcome.Result = ResultPosted
	outcome.ExternalPostID = postID
	return outcome, nil
}

// PublishArticle generates and publishes one long-form article, at most one
// per UTC day. An empty topic falls back to weighted selection from the
// configured topics. Articles share the posting budget.
func (d *ScheduleDriver) PublishArticle(ctx context.Context, now time.Time, topic string) (*ActionOutcome, error) {
	now = now.UTC()
	windowKey := utcDay(now)
	outcome := &ActionOutcome{
		RunID:     uuid.NewString(),
		Kind:      models.ActionPost,
		Result:    ResultNoop,
		SlotKey:   articleTargetKey,
		WindowKey: windowKey,
	}
	logger := d.logger.With(zap.String("run_id", outcome.RunID))

	done, err := d.ledger.HasSucceeded(models.ActionPost, articleTargetKey, windowKey)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		return outcome, err
	}
	if done {
		logger.Info("Article already published today", zap.String("window", windowKey))
		return outcome, nil
	}

	claim, claimed, err := d.ledger.Claim(models.ActionPost, articleTargetKey, windowKey, outcome.RunID, now)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		return outcome, err
	}
	if !claimed {
		logger.Info("Article claimed by another invocation", zap.String("window", windowKey))
		return outcome, nil
	}

	admission, err := d.limiter.Admit(models.ActionPost, now)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}
	if !admission.Allowed {
		logger.Info("Rate limit reached, skipping article")
		if err := d.ledger.RecordSkipped(claim, models.ErrKindRateLimit); err != nil {
			logger.Error("Failed to record skipped outcome", zap.Error(err))
		}
		outcome.Result = ResultSkipped
		return outcome, nil
	}

	if topic == "" {
		topic = d.pickTopic(now)
	}
	claim.Topic = topic
	outcome.Topic = topic

	article, err := d.generator.GenerateArticle(ctx, topic)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = classifyError(err)
		d.recordFailure(logger, claim, outcome.ErrorKind, err)
		return outcome, err
	}

	rec, err := d.posts.CreatePending(&models.ContentItem{
		Topic: article.Topic,
		Title: article.Title,
		Body:  article.Content,
	}, claim.ID)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}

	if err := d.sleep(ctx, admission.Delay); err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		d.recordFailure(logger, claim, models.ErrKindInternal, err)
		return outcome, err
	}

	postID, err := d.poster.PublishArticle(ctx, article)
	if err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = classifyError(err)
		if markErr := d.posts.MarkFailed(rec, err.Error()); markErr != nil {
			logger.Error("Failed to mark post record failed", zap.Error(markErr))
		}
		d.recordFailure(logger, claim, outcome.ErrorKind, err)
		return outcome, err
	}

	if err := d.posts.MarkSucceeded(rec, postID, now); err != nil {
		logger.Error("Failed to mark post record succeeded", zap.Error(err))
	}
	if err := d.ledger.RecordSuccess(claim, postID); err != nil {
		outcome.Result = ResultFailed
		outcome.ErrorKind = models.ErrKindInternal
		return outcome, err
	}

	logger.Info("Article published",
		zap.String("topic", topic),
		zap.String("post_id", postID))

	outcome.Result = ResultPosted
	outcome.ExternalPostID = postID
	return outcome, nil
}

func (d *ScheduleDriver) recordFailure(logger *zap.Logger, claim *models.LedgerEntry, kind models.ErrorKind, cause error) {
	logger.Error("Action failed",
		zap.String("slot", claim.TargetKey),
		zap.String("error_kind", string(kind)),
		zap.Error(cause))
	if err := d.ledger.RecordFailure(claim, kind, cause.Error()); err != nil {
		logger.Error("Failed to record failure outcome", zap.Error(err))
	}
}

// pickTopic selects from the configured topics, weighted by past
// performance when a weigher is available.
func (d *ScheduleDriver) pickTopic(now time.Time) string {
	topics := d.cfg.Content.Topics
	if len(topics) == 1 {
		return topics[0]
	}

	weights := make([]float64, len(topics))
	total := 0.0
	var performance map[string]float64
	if d.weigher != nil {
		if w, err := d.weigher.TopicWeights(now); err == nil {
			performance = w
		} else {
			d.logger.Warn("Topic weights unavailable, selecting uniformly", zap.Error(err))
		}
	}
	for i, topic := range topics {
		weights[i] = 1.0
		if w, ok := performance[topic]; ok && w > 0 {
			weights[i] += w
		}
		total += weights[i]
	}

	r := d.rand.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return topics[i]
		}
	}
	return topics[len(topics)-1]
}

// classifyError maps external-call failures onto ledger error kinds at the
// driver boundary so nothing escapes untagged.
func classifyError(err error) models.ErrorKind {
	var genErr *content.GenerationError
	var authErr *linkedin.AuthError
	var transientErr *linkedin.TransientError
	switch {
	case errors.As(err, &genErr):
		return models.ErrKindGeneration
	case errors.As(err, &authErr):
		return models.ErrKindAuth
	case errors.As(err, &transientErr):
		return models.ErrKindTransient
	default:
		return models.ErrKindInternal
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
