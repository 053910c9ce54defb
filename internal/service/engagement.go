package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

// SocialFeed is the slice of the social client the engagement worker needs.
type SocialFeed interface {
	FetchRecentNetworkPosts(ctx context.Context, limit int) ([]models.NetworkPost, error)
	LikePost(ctx context.Context, postID string) error
	PostComment(ctx context.Context, postID, text string) error
}

// CommentGenerator writes short comments for network posts.
type CommentGenerator interface {
	GenerateComment(ctx context.Context, post models.NetworkPost) (string, error)
}

// EngagementOutcome reports what happened to one candidate post.
type EngagementOutcome struct {
	PostID    string           `json:"post_id"`
	Author    string           `json:"author"`
	Result    Result           `json:"result"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
}

// EngagementWorker reacts to recent network posts under its own action kind
// and budget, independent of the posting schedule. A post is engaged with
// (liked and commented on) at most once ever; the ledger remembers across
// runs.
type EngagementWorker struct {
	cfg       *config.EngagementConfig
	logger    *zap.Logger
	ledger    Ledger
	limiter   RateLimiter
	generator CommentGenerator
	feed      SocialFeed
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewEngagementWorker(
	cfg *config.EngagementConfig,
	logger *zap.Logger,
	ledger Ledger,
	limiter RateLimiter,
	generator CommentGenerator,
	feed SocialFeed,
) *EngagementWorker {
	return &EngagementWorker{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		limiter:   limiter,
		generator: generator,
		feed:      feed,
		sleep:     sleepContext,
	}
}

// Cycle fetches recent posts and likes plus comments on up to the per-cycle
// cap of them. Generation and transient publish failures skip to the next
// post; an auth failure aborts the whole cycle since every further call
// would fail the same way.
func (w *EngagementWorker) Cycle(ctx context.Context, now time.Time) ([]EngagementOutcome, error) {
	now = now.UTC()
	runID := uuid.NewString()
	logger := w.logger.With(zap.String("run_id", runID))

	posts, err := w.feed.FetchRecentNetworkPosts(ctx, w.cfg.FetchLimit)
	if err != nil {
		w.recordFetchFailure(logger, runID, now, err)
		return nil, err
	}
	logger.Info("Fetched network posts", zap.Int("count", len(posts)))

	var outcomes []EngagementOutcome
	commented := 0
	for _, post := range posts {
		if commented >= w.cfg.PerCycleCap {
			break
		}

		done, err := w.ledger.HasSucceeded(models.ActionEngagement, post.ID, models.WindowAllTime)
		if err != nil {
			return outcomes, err
		}
		if done {
			continue
		}

		claim, claimed, err := w.ledger.Claim(models.ActionEngagement, post.ID, models.WindowAllTime, runID, now)
		if err != nil {
			return outcomes, err
		}
		if !claimed {
			continue
		}

		admission, err := w.limiter.Admit(models.ActionEngagement, now)
		if err != nil {
			w.recordFailure(logger, claim, models.ErrKindInternal, err)
			return outcomes, err
		}
		if !admission.Allowed {
			logger.Info("Engagement budget exhausted for today")
			if err := w.ledger.RecordSkipped(claim, models.ErrKindRateLimit); err != nil {
				logger.Error("Failed to record skipped outcome", zap.Error(err))
			}
			outcomes = append(outcomes, EngagementOutcome{
				PostID: post.ID, Author: post.AuthorName,
				Result: ResultSkipped, ErrorKind: models.ErrKindRateLimit,
			})
			break
		}

		text, err := w.generator.GenerateComment(ctx, post)
		if err != nil {
			w.recordFailure(logger, claim, classifyError(err), err)
			outcomes = append(outcomes, EngagementOutcome{
				PostID: post.ID, Author: post.AuthorName,
				Result: ResultFailed, ErrorKind: classifyError(err),
			})
			continue
		}

		if err := w.sleep(ctx, admission.Delay); err != nil {
			w.recordFailure(logger, claim, models.ErrKindInternal, err)
			return outcomes, err
		}

		// Like first, then comment, as a single engagement action on the post.
		if err := w.feed.LikePost(ctx, post.ID); err != nil {
			kind := classifyError(err)
			w.recordFailure(logger, claim, kind, err)
			outcomes = append(outcomes, EngagementOutcome{
				PostID: post.ID, Author: post.AuthorName,
				Result: ResultFailed, ErrorKind: kind,
			})
			if kind == models.ErrKindAuth {
				return outcomes, err
			}
			continue
		}

		if err := w.feed.PostComment(ctx, post.ID, text); err != nil {
			kind := classifyError(err)
			w.recordFailure(logger, claim, kind, err)
			outcomes = append(outcomes, EngagementOutcome{
				PostID: post.ID, Author: post.AuthorName,
				Result: ResultFailed, ErrorKind: kind,
			})
			if kind == models.ErrKindAuth {
				return outcomes, err
			}
			continue
		}

		if err := w.ledger.RecordSuccess(claim, post.ID); err != nil {
			return outcomes, err
		}
		commented++
		outcomes = append(outcomes, EngagementOutcome{
			PostID: post.ID, Author: post.AuthorName, Result: ResultPosted,
		})
		logger.Info("Liked and commented on post",
			zap.String("post_id", post.ID),
			zap.String("author", post.AuthorName))
	}

	return outcomes, nil
}

// recordFetchFailure leaves a failed ledger entry for the cycle itself so a
// broken feed shows up in the activity log, not just in stderr.
func (w *EngagementWorker) recordFetchFailure(logger *zap.Logger, runID string, now time.Time, cause error) {
	claim, claimed, err := w.ledger.Claim(models.ActionEngagement, "feed-fetch", utcDay(now), runID, now)
	if err != nil || !claimed {
		logger.Error("Feed fetch failed", zap.Error(cause))
		return
	}
	w.recordFailure(logger, claim, classifyError(cause), cause)
}

func (w *EngagementWorker) recordFailure(logger *zap.Logger, claim *models.LedgerEntry, kind models.ErrorKind, cause error) {
	logger.Error("Engagement action failed",
		zap.String("target", claim.TargetKey),
		zap.String("error_kind", string(kind)),
		zap.Error(cause))
	if err := w.ledger.RecordFailure(claim, kind, cause.Error()); err != nil {
		logger.Error("Failed to record failure outcome", zap.Error(err))
	}
}
