package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
	"ledger-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const accountsCacheTTL = 15 * time.Second

func userAccountsCacheKey(userID string) string {
	return fmt.Sprintf("accounts:user:%s", userID)
}

// AccountUsecase covers account lifecycle and reads around the ledger
// engine: the registration-time account pair, owner listings and the
// admin-wide views. Balance mutation stays in LedgerUsecase.
type AccountUsecase struct {
	accountRepo repository.AccountRepository
	userRepo    repository.UserRepository
	ids         *utils.IDGenerator
	redisClient *redis.Client
	log         *zap.Logger
}

func NewAccountUsecase(
	accountRepo repository.AccountRepository,
	userRepo repository.UserRepository,
	ids *utils.IDGenerator,
	redisClient *redis.Client,
	log *zap.Logger,
) *AccountUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountUsecase{
		accountRepo: accountRepo,
		userRepo:    userRepo,
		ids:         ids,
		redisClient: redisClient,
		log:         log,
	}
}

// RegisterUser creates the user and its demo account pair: an active
// checking account with 1000.00 and a savings account with 5000.00.
// The caller supplies an already-hashed password.
func (uc *AccountUsecase) RegisterUser(ctx context.Context, u *domain.User) ([]*domain.Account, error) {
	if u.Email == "" || u.PasswordHash == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}
	if _, err := uc.userRepo.GetByEmail(ctx, u.Email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrValidation)
	}

	if u.ID == "" {
		u.ID = uc.ids.NewID()
	}
	if u.Role == "" {
		u.Role = domain.RoleCustomer
	}
	u.Status = domain.UserActive

	if err := uc.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}

	pair := []*domain.Account{
		{
			Kind:           domain.AccountChecking,
			Balance:        domain.DefaultCheckingBalance,
			MonthlyFee:     domain.DefaultMonthlyFee,
			InterestRate:   decimal.Zero,
			MinimumBalance: domain.DefaultMinimumBalance,
		},
		{
			Kind:           domain.AccountSavings,
			Balance:        domain.DefaultSavingsBalance,
			InterestRate:   domain.DefaultInterestRate,
			MonthlyFee:     decimal.Zero,
			MinimumBalance: domain.DefaultMinimumBalance,
		},
	}
	for _, a := range pair {
		a.ID = uc.ids.NewID()
		a.UserID = u.ID
		a.AccountNumber = uc.ids.AccountNumber()
		a.Status = domain.AccountActive
		if err := uc.accountRepo.Create(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to create %s account: %w", a.Kind, err)
		}
	}

	uc.log.Info("user registered",
		zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return pair, nil
}

// GetUserAccounts lists the caller's accounts, served from a short-lived
// redis cache that ledger operations invalidate on mutation.
func (uc *AccountUsecase) GetUserAccounts(ctx context.Context, caller domain.Caller) ([]*domain.Account, error) {
	cacheKey := userAccountsCacheKey(caller.UserID)

	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var accounts []*domain.Account
			if jsonErr := json.Unmarshal([]byte(val), &accounts); jsonErr == nil {
				return accounts, nil
			}
		}
	}

	accounts, err := uc.accountRepo.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(accounts); err == nil {
			_ = uc.redisClient.Set(ctx, cacheKey, data, accountsCacheTTL).Err()
		}
	}
	return accounts, nil
}

// GetAccount fetches one account, allowing the owner and admins.
func (uc *AccountUsecase) GetAccount(ctx context.Context, caller domain.Caller, accountID string) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != caller.UserID && !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: not your account", domain.ErrAccessDenied)
	}
	return account, nil
}

// SetAccountStatus moves an account between active/inactive/suspended.
// Accounts are never deleted. Admin only.
func (uc *AccountUsecase) SetAccountStatus(ctx context.Context, caller domain.Caller, accountID string, status domain.AccountStatus) error {
	if !caller.Role.IsAdmin() {
		return fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}
	switch status {
	case domain.AccountActive, domain.AccountInactive, domain.AccountSuspended:
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := uc.accountRepo.SetStatus(ctx, accountID, status); err != nil {
		return err
	}
	if uc.redisClient != nil {
		_ = uc.redisClient.Del(ctx, userAccountsCacheKey(account.UserID)).Err()
	}
	return nil
}

// ListAllAccounts is the admin listing joined with owner name and email.
func (uc *AccountUsecase) ListAllAccounts(ctx context.Context, caller domain.Caller) ([]*domain.AccountSummary, error) {
	if !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}
	return uc.accountRepo.ListAll(ctx)
}

// ListUsers is the admin user listing.
func (uc *AccountUsecase) ListUsers(ctx context.Context, caller domain.Caller) ([]*domain.User, error) {
	if !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}
	return uc.userRepo.List(ctx)
}
