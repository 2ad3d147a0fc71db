package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"tableside/internal/domain"
	"tableside/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary (Redis) and switches to the
// in-memory fallback on the first error. It retries primary once per
// recoveryInterval.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverSessionRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverSessionRepository) shouldRetryPrimary() bool {
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

// callerGone reports whether err comes from the request's own context
// rather than from the store.
func callerGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func withFailover[T any](
	ctx context.Context,
	r *FailoverSessionRepository,
	op string,
	call func(domain.SessionRepository) (T, error),
) (T, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		wasDown := r.isDown.Load()
		res, err := call(r.primary)
		if err == nil {
			if wasDown {
				r.isDown.Store(false)
				r.logger.Info().Str("op", op).Msg("primary session repository recovered")
			}
			return res, nil
		}
		if callerGone(ctx, err) {
			return res, err
		}
		r.markDown(op, err)
	}
	return call(r.fallback)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.GuestSession) error {
	_, err := withFailover(ctx, r, "save_session", func(repo domain.SessionRepository) (struct{}, error) {
		return struct{}{}, repo.SaveSession(ctx, session)
	})
	return err
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.GuestSession, error) {
	return withFailover(ctx, r, "get_session", func(repo domain.SessionRepository) (*models.GuestSession, error) {
		return repo.GetSession(ctx, id)
	})
}

func (r *FailoverSessionRepository) ClaimTable(ctx context.Context, claim *models.TableClaim) (bool, error) {
	return withFailover(ctx, r, "claim_table", func(repo domain.SessionRepository) (bool, error) {
		return repo.ClaimTable(ctx, claim)
	})
}

func (r *FailoverSessionRepository) GetTableClaim(ctx context.Context, tableID int64) (*models.TableClaim, error) {
	return withFailover(ctx, r, "get_table_claim", func(repo domain.SessionRepository) (*models.TableClaim, error) {
		return repo.GetTableClaim(ctx, tableID)
	})
}

func (r *FailoverSessionRepository) ExtendTableClaim(ctx context.Context, claim *models.TableClaim) (bool, error) {
	return withFailover(ctx, r, "extend_table_claim", func(repo domain.SessionRepository) (bool, error) {
		return repo.ExtendTableClaim(ctx, claim)
	})
}

func (r *FailoverSessionRepository) ReleaseTable(ctx context.Context, tableID int64) error {
	_, err := withFailover(ctx, r, "release_table", func(repo domain.SessionRepository) (struct{}, error) {
		return struct{}{}, repo.ReleaseTable(ctx, tableID)
	})
	return err
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return withFailover(ctx, r, "check_rate_limit", func(repo domain.SessionRepository) (bool, error) {
		return repo.CheckRateLimit(ctx, key, limit, window)
	})
}
