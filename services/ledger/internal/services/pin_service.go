package services

import (
	"context"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/pkg/repositories"
	"github.com/corebank/ledger-core/services/ledger/configs"
	"github.com/corebank/ledger-core/services/ledger/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// PinService is the PIN guard. A successful Authorize yields a grant that
// covers money-movement operations until the freshness window lapses or the
// grant is revoked.
type PinService interface {
	// Authorize verifies pin against the account's stored hash and issues a
	// fresh grant.
	Authorize(ctx context.Context, accountID uuid.UUID, pin string) (models.PinGrant, error)
	// Check reports whether the account still holds a fresh grant.
	Check(ctx context.Context, accountID uuid.UUID) error
	// Revoke drops the account's grant, forcing re-verification.
	Revoke(ctx context.Context, accountID uuid.UUID) error
}

type PinServiceImpl struct {
	logger      *zap.Logger
	cnf         *configs.Config
	db          Database
	accountRepo repositories.AccountRepository
	grants      GrantStore
	limiter     AttemptLimiter
	now         func() time.Time
}

func NewPinService(logger *zap.Logger, cnf *configs.Config, db Database,
	accountRepo repositories.AccountRepository, grants GrantStore, limiter AttemptLimiter) PinService {
	return &PinServiceImpl{
		logger:      logger,
		cnf:         cnf,
		db:          db,
		accountRepo: accountRepo,
		grants:      grants,
		limiter:     limiter,
		now:         time.Now,
	}
}

func (s *PinServiceImpl) Authorize(ctx context.Context, accountID uuid.UUID, pin string) (models.PinGrant, error) {
	if s.limiter != nil && !s.limiter.Allow(ctx, accountID) {
		observability.PinVerifications.WithLabelValues("throttled").Inc()
		return models.PinGrant{}, pkg.NewAppError(pkg.ErrPinThrottledCode, "too many pin attempts", nil)
	}

	account, err := s.accountRepo.FindById(ctx, s.db, accountID)
	if err != nil {
		return models.PinGrant{}, pkg.HandleSQLError(s.logger, "pin_authorize", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PinHash), []byte(pin)); err != nil {
		observability.PinVerifications.WithLabelValues("denied").Inc()
		s.logger.Warn("pin verification failed", zap.String("account_id", accountID.String()))
		return models.PinGrant{}, pkg.NewAppError(pkg.ErrPinDeniedCode, "pin verification failed", pkg.ErrPinMismatch)
	}

	grant := models.PinGrant{AccountID: accountID, GrantedAt: s.now()}
	if err := s.grants.Put(ctx, grant, s.cnf.PinFreshnessWindow); err != nil {
		return models.PinGrant{}, err
	}
	observability.PinVerifications.WithLabelValues("granted").Inc()
	return grant, nil
}

func (s *PinServiceImpl) Check(ctx context.Context, accountID uuid.UUID) error {
	grant, ok, err := s.grants.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.NewAppError(pkg.ErrPinExpiredCode, "pin grant expired", nil)
	}
	// The store TTL should have evicted a stale grant already; the clock check
	// catches grants kept alive by a store without expiry.
	if s.now().Sub(grant.GrantedAt) > s.cnf.PinFreshnessWindow {
		_ = s.grants.Delete(ctx, accountID)
		return pkg.NewAppError(pkg.ErrPinExpiredCode, "pin grant expired", nil)
	}
	return nil
}

func (s *PinServiceImpl) Revoke(ctx context.Context, accountID uuid.UUID) error {
	return s.grants.Delete(ctx, accountID)
}
