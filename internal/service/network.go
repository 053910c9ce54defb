package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

// ConnectionSender is the slice of the social client the network worker needs.
type ConnectionSender interface {
	SendConnectionRequest(ctx context.Context, personID, message string) error
}

// NoteGenerator writes personalized connection notes.
type NoteGenerator interface {
	GenerateConnectionNote(ctx context.Context, prospect models.Prospect) (string, error)
}

// ConnectionOutcome reports what happened to one prospect.
type ConnectionOutcome struct {
	ProspectID string           `json:"prospect_id"`
	Name       string           `json:"name"`
	Result     Result           `json:"result"`
	ErrorKind  models.ErrorKind `json:"error_kind,omitempty"`
}

// NetworkWorker sends connection requests to configured prospects. Each
// prospect is contacted at most once ever, and every send is admitted
// against the connection budget before any request goes out.
type NetworkWorker struct {
	cfg       *config.NetworkConfig
	logger    *zap.Logger
	ledger    Ledger
	limiter   RateLimiter
	generator NoteGenerator
	sender    ConnectionSender
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewNetworkWorker(
	cfg *config.NetworkConfig,
	logger *zap.Logger,
	ledger Ledger,
	limiter RateLimiter,
	generator NoteGenerator,
	sender ConnectionSender,
) *NetworkWorker {
	return &NetworkWorker{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		limiter:   limiter,
		generator: generator,
		sender:    sender,
		sleep:     sleepContext,
	}
}

// RunBatch works through the prospect list until the batch limit or the
// daily budget is hit. Prospects already contacted in a previous run are
// passed over silently.
func (w *NetworkWorker) RunBatch(ctx context.Context, now time.Time) ([]ConnectionOutcome, error) {
	now = now.UTC()
	runID := uuid.NewString()
	logger := w.logger.With(zap.String("run_id", runID))

	var outcomes []ConnectionOutcome
	sent := 0
	for _, prospect := range w.cfg.Prospects {
		if w.cfg.BatchLimit > 0 && sent >= w.cfg.BatchLimit {
			break
		}

		done, err := w.ledger.HasSucceeded(models.ActionConnection, prospect.ID, models.WindowAllTime)
		if err != nil {
			return outcomes, err
		}
		if done {
			continue
		}

		claim, claimed, err := w.ledger.Claim(models.ActionConnection, prospect.ID, models.WindowAllTime, runID, now)
		if err != nil {
			return outcomes, err
		}
		if !claimed {
			continue
		}

		admission, err := w.limiter.Admit(models.ActionConnection, now)
		if err != nil {
			w.recordFailure(logger, claim, models.ErrKindInternal, err)
			return outcomes, err
		}
		if !admission.Allowed {
			logger.Info("Connection budget exhausted for today")
			if err := w.ledger.RecordSkipped(claim, models.ErrKindRateLimit); err != nil {
				logger.Error("Failed to record skipped outcome", zap.Error(err))
			}
			outcomes = append(outcomes, ConnectionOutcome{
				ProspectID: prospect.ID, Name: prospect.Name,
				Result: ResultSkipped, ErrorKind: models.ErrKindRateLimit,
			})
			break
		}

		note, err := w.generator.GenerateConnectionNote(ctx, prospect)
		if err != nil {
			w.recordFailure(logger, claim, classifyError(err), err)
			outcomes = append(outcomes, ConnectionOutcome{
				ProspectID: prospect.ID, Name: prospect.Name,
				Result: ResultFailed, ErrorKind: classifyError(err),
			})
			continue
		}

		if err := w.sleep(ctx, admission.Delay); err != nil {
			w.recordFailure(logger, claim, models.ErrKindInternal, err)
			return outcomes, err
		}

		if err := w.sender.SendConnectionRequest(ctx, prospect.ID, note); err != nil {
			kind := classifyError(err)
			w.recordFailure(logger, claim, kind, err)
			outcomes = append(outcomes, ConnectionOutcome{
				ProspectID: prospect.ID, Name: prospect.Name,
				Result: ResultFailed, ErrorKind: kind,
			})
			if kind == models.ErrKindAuth {
				return outcomes, err
			}
			continue
		}

		if err := w.ledger.RecordSuccess(claim, prospect.ID); err != nil {
			return outcomes, err
		}
		sent++
		outcomes = append(outcomes, ConnectionOutcome{
			ProspectID: prospect.ID, Name: prospect.Name, Result: ResultPosted,
		})
		logger.Info("Sent connection request",
			zap.String("prospect", prospect.Name),
			zap.String("company", prospect.Company))
	}

	return outcomes, nil
}

func (w *NetworkWorker) recordFailure(logger *zap.Logger, claim *models.LedgerEntry, kind models.ErrorKind, cause error) {
	logger.Error("Connection request failed",
		zap.String("target", claim.TargetKey),
		zap.String("error_kind", string(kind)),
		zap.Error(cause))
	if err := w.ledger.RecordFailure(claim, kind, cause.Error()); err != nil {
		logger.Error("Failed to record failure outcome", zap.Error(err))
	}
}
