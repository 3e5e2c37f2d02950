package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// History caps: the customer-facing cap applies to per-account
	// listings, the admin cap to ledger-wide listings.
	CustomerHistoryCap = 100
	AdminHistoryCap    = 500

	wireArrivalDelay     = 72 * time.Hour
	domesticArrivalDelay = 24 * time.Hour
)

// LedgerUsecase is the transaction engine: it validates balance-changing
// operations, applies them through the account store's atomic primitives
// and appends exactly one immutable record per committed operation.
// It holds no mutable state between calls; all durable state lives in
// the injected stores.
type LedgerUsecase struct {
	accountRepo repository.AccountRepository
	txRepo      repository.TransactionRepository
	ids         *utils.IDGenerator
	events      *pub.TransactionEventPublisher
	redisClient *redis.Client
	log         *zap.Logger

	// transferLimit is the per-operation ceiling for customer transfers.
	transferLimit decimal.Decimal
}

func NewLedgerUsecase(
	accountRepo repository.AccountRepository,
	txRepo repository.TransactionRepository,
	ids *utils.IDGenerator,
	events *pub.TransactionEventPublisher,
	redisClient *redis.Client,
	log *zap.Logger,
	transferLimit decimal.Decimal,
) *LedgerUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerUsecase{
		accountRepo:   accountRepo,
		txRepo:        txRepo,
		ids:           ids,
		events:        events,
		redisClient:   redisClient,
		log:           log,
		transferLimit: transferLimit,
	}
}

// RecipientInfo carries display-only details for external transfers.
type RecipientInfo struct {
	Name          string
	Bank          string
	RoutingNumber string
}

type TransferInput struct {
	FromAccountID string
	ToAccountID   string // internal transfers only
	Amount        decimal.Decimal
	Kind          domain.TransactionKind
	Description   string
	Recipient     *RecipientInfo

	// IdempotencyKey, when set, lets the caller safely retry: a repeat
	// of a key within the replay window returns the original record
	// instead of moving funds again.
	IdempotencyKey string
}

// Transfer moves funds out of the caller's account. Internal transfers
// debit and credit as one atomic unit; wire/domestic transfers debit the
// source only (the destination lives outside the ledger). The ceiling is
// checked before the funds check. On any precondition failure nothing is
// mutated and nothing is logged to the transaction log.
func (uc *LedgerUsecase) Transfer(ctx context.Context, caller domain.Caller, in TransferInput) (*domain.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	if record, ok := uc.replayedTransfer(ctx, caller, in.IdempotencyKey); ok {
		return record, nil
	}

	source, err := uc.accountRepo.GetByID(ctx, in.FromAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid source account", domain.ErrAccessDenied)
		}
		return nil, err
	}
	if source.UserID != caller.UserID {
		return nil, fmt.Errorf("%w: invalid source account", domain.ErrAccessDenied)
	}
	if source.Status != domain.AccountActive {
		return nil, fmt.Errorf("%w: source account is %s", domain.ErrAccountInactive, source.Status)
	}
	if in.Amount.GreaterThan(uc.transferLimit) {
		return nil, fmt.Errorf("%w: amount exceeds %s per-transfer ceiling", domain.ErrLimitExceeded, uc.transferLimit)
	}
	if source.Balance.LessThan(in.Amount) {
		return nil, fmt.Errorf("%w: balance %s below %s", domain.ErrInsufficientFunds, source.Balance, in.Amount)
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		ID:               uc.ids.NewID(),
		FromAccountID:    &source.ID,
		Amount:           in.Amount,
		Kind:             in.Kind,
		Description:      in.Description,
		Status:           domain.StatusCompleted,
		UserID:           caller.UserID,
		ConfirmationCode: uc.ids.ConfirmationCode(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	switch in.Kind {
	case domain.TransferInternal:
		if in.ToAccountID == "" || in.ToAccountID == in.FromAccountID {
			return nil, fmt.Errorf("%w: invalid destination account", domain.ErrValidation)
		}
		dest, err := uc.accountRepo.GetByID(ctx, in.ToAccountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: invalid destination account", domain.ErrValidation)
			}
			return nil, err
		}
		if dest.UserID != caller.UserID {
			return nil, fmt.Errorf("%w: invalid destination account", domain.ErrValidation)
		}
		if dest.Status != domain.AccountActive {
			return nil, fmt.Errorf("%w: destination account is %s", domain.ErrAccountInactive, dest.Status)
		}

		if err := uc.accountRepo.TransferBalances(ctx, source.ID, dest.ID, in.Amount); err != nil {
			if errors.Is(err, domain.ErrConsistency) {
				uc.log.Error("partial transfer requires manual reconciliation",
					zap.String("from_account", source.ID),
					zap.String("to_account", dest.ID),
					zap.String("amount", in.Amount.String()),
					zap.Error(err))
			}
			return nil, err
		}
		record.ToAccountID = &dest.ID

	case domain.TransferWire, domain.TransferDomestic:
		if err := uc.accountRepo.DebitBalance(ctx, source.ID, in.Amount); err != nil {
			return nil, err
		}
		delay := domesticArrivalDelay
		if in.Kind == domain.TransferWire {
			// Wires are created pending and nothing transitions them;
			// settlement is outside this system.
			record.Status = domain.StatusPending
			delay = wireArrivalDelay
		}
		arrival := now.Add(delay)
		record.EstimatedArrival = &arrival
		if in.Recipient != nil {
			record.RecipientName = &in.Recipient.Name
			record.RecipientBank = &in.Recipient.Bank
			record.RoutingNumber = &in.Recipient.RoutingNumber
		}

	default:
		return nil, fmt.Errorf("%w: unknown transfer type %q", domain.ErrValidation, in.Kind)
	}

	committed, err := uc.commitRecord(ctx, record, source.UserID)
	if err == nil {
		uc.rememberTransfer(ctx, caller, in.IdempotencyKey, committed.ID)
	}
	return committed, err
}

const transferReplayWindow = 24 * time.Hour

func transferIdemKey(userID, key string) string {
	return fmt.Sprintf("idem:transfer:%s:%s", userID, key)
}

// replayedTransfer checks the caller-supplied idempotency key against the
// replay window and returns the previously committed record on a hit.
// Best-effort: with no redis configured every transfer executes fresh,
// which matches the behavior of callers that send no key.
func (uc *LedgerUsecase) replayedTransfer(ctx context.Context, caller domain.Caller, key string) (*domain.Transaction, bool) {
	if key == "" || uc.redisClient == nil {
		return nil, false
	}
	id, err := uc.redisClient.Get(ctx, transferIdemKey(caller.UserID, key)).Result()
	if err != nil || id == "" {
		return nil, false
	}
	record, err := uc.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, false
	}
	return record, true
}

func (uc *LedgerUsecase) rememberTransfer(ctx context.Context, caller domain.Caller, key, recordID string) {
	if key == "" || uc.redisClient == nil {
		return
	}
	_ = uc.redisClient.Set(ctx, transferIdemKey(caller.UserID, key), recordID, transferReplayWindow).Err()
}

type AdjustDirection string

const (
	AdjustCredit AdjustDirection = "credit"
	AdjustDebit  AdjustDirection = "debit"
)

type AdjustInput struct {
	AccountID   string
	Amount      decimal.Decimal
	Direction   AdjustDirection
	Description string
	// Backdate, when non-nil, requests an RFC3339 creation timestamp.
	// Honored only for super_admin callers with a parsable value.
	Backdate *string
}

// AdminAdjust applies an administrative credit or debit. The recorded
// Backdated flag reflects whether a backdate was requested, independent
// of whether it was honored; downstream consumers depend on that exact
// semantics.
func (uc *LedgerUsecase) AdminAdjust(ctx context.Context, caller domain.Caller, in AdjustInput) (*domain.Transaction, error) {
	if !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if in.Direction != AdjustCredit && in.Direction != AdjustDebit {
		return nil, fmt.Errorf("%w: direction must be credit or debit", domain.ErrValidation)
	}

	account, err := uc.accountRepo.GetByID(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	if in.Direction == AdjustDebit {
		if err := uc.accountRepo.DebitBalance(ctx, account.ID, in.Amount); err != nil {
			return nil, err
		}
	} else {
		if err := uc.accountRepo.CreditBalance(ctx, account.ID, in.Amount); err != nil {
			return nil, err
		}
	}

	createdAt := time.Now().UTC()
	if in.Backdate != nil && caller.Role == domain.RoleSuperAdmin {
		if ts, parseErr := time.Parse(time.RFC3339, *in.Backdate); parseErr == nil {
			createdAt = ts.UTC()
		}
		// An unparsable backdate silently falls back to now.
	}

	record := &domain.Transaction{
		ID:               uc.ids.NewID(),
		Amount:           in.Amount,
		Description:      in.Description,
		Status:           domain.StatusCompleted,
		UserID:           caller.UserID,
		ConfirmationCode: uc.ids.ConfirmationCode(),
		Backdated:        in.Backdate != nil,
		CreatedAt:        createdAt,
		UpdatedAt:        time.Now().UTC(),
	}
	if in.Direction == AdjustCredit {
		record.Kind = domain.AdminCredit
		record.ToAccountID = &account.ID
	} else {
		record.Kind = domain.AdminDebit
		record.FromAccountID = &account.ID
	}

	return uc.commitRecord(ctx, record, account.UserID)
}

// AccrueInterest credits one month of interest to a savings account:
// balance * annual_rate / 12, rounded to cents. The balance is read at
// computation time; a concurrent mutation before the credit lands is an
// accepted race for this monthly batch. No-op for non-savings accounts
// and for non-positive computed amounts.
func (uc *LedgerUsecase) AccrueInterest(ctx context.Context, accountID string) (*domain.Transaction, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Kind != domain.AccountSavings {
		return nil, nil
	}

	monthly := account.Balance.Mul(account.InterestRate).Div(decimal.NewFromInt(12)).Round(2)
	if !monthly.IsPositive() {
		return nil, nil
	}

	if err := uc.accountRepo.CreditBalance(ctx, account.ID, monthly); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		ID:          uc.ids.NewID(),
		ToAccountID: &account.ID,
		Amount:      monthly,
		Kind:        domain.InterestCredit,
		Description: "Monthly interest credit",
		Status:      domain.StatusCompleted,
		UserID:      account.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return uc.commitRecord(ctx, record, account.UserID)
}

// AssessFee debits the monthly maintenance fee from a checking account.
// When the balance cannot cover the fee the assessment silently skips:
// no error, no mutation, no record. Fees never push an account into
// overdraft.
func (uc *LedgerUsecase) AssessFee(ctx context.Context, accountID string) (*domain.Transaction, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Kind != domain.AccountChecking || !account.MonthlyFee.IsPositive() {
		return nil, nil
	}
	if account.Balance.LessThan(account.MonthlyFee) {
		return nil, nil
	}

	if err := uc.accountRepo.DebitBalance(ctx, account.ID, account.MonthlyFee); err != nil {
		// A concurrent debit may have consumed the balance since the
		// read above; treat it like the precondition failing.
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		ID:            uc.ids.NewID(),
		FromAccountID: &account.ID,
		Amount:        account.MonthlyFee,
		Kind:          domain.MonthlyFee,
		Description:   "Monthly maintenance fee",
		Status:        domain.StatusCompleted,
		UserID:        account.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return uc.commitRecord(ctx, record, account.UserID)
}

// ListTransactions returns history for one account (source or
// destination side), newest first, capped at CustomerHistoryCap.
// Accessible to the owner and to admins.
func (uc *LedgerUsecase) ListTransactions(ctx context.Context, caller domain.Caller, accountID string, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != caller.UserID && !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: not your account", domain.ErrAccessDenied)
	}

	f.Limit = capLimit(f.Limit, CustomerHistoryCap)
	return uc.txRepo.ListByAccount(ctx, accountID, f)
}

// ListAllTransactions is the admin-wide history, capped at AdminHistoryCap.
func (uc *LedgerUsecase) ListAllTransactions(ctx context.Context, caller domain.Caller, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	if !caller.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
	}
	f.Limit = capLimit(f.Limit, AdminHistoryCap)
	return uc.txRepo.List(ctx, f)
}

// commitRecord appends the transaction record for an already-applied
// balance mutation, invalidates cached account reads and publishes the
// event. A failed append after a successful mutation is a consistency
// fault: operator-visible, never silently dropped.
func (uc *LedgerUsecase) commitRecord(ctx context.Context, record *domain.Transaction, ownerID string) (*domain.Transaction, error) {
	if err := uc.txRepo.Create(ctx, record); err != nil {
		uc.log.Error("balance mutated but record append failed; manual reconciliation required",
			zap.String("transaction_id", record.ID),
			zap.String("transfer_type", string(record.Kind)),
			zap.String("amount", record.Amount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: record append failed: %v", domain.ErrConsistency, err)
	}

	uc.invalidateAccountsCache(ctx, ownerID, record.UserID)

	if err := uc.events.Publish(ctx, record); err != nil {
		uc.log.Warn("transaction event publish failed",
			zap.String("transaction_id", record.ID), zap.Error(err))
	}
	return record, nil
}

func (uc *LedgerUsecase) invalidateAccountsCache(ctx context.Context, userIDs ...string) {
	if uc.redisClient == nil {
		return
	}
	for _, id := range userIDs {
		_ = uc.redisClient.Del(ctx, userAccountsCacheKey(id)).Err()
	}
}

// validateAmount enforces positive amounts with at most two decimal
// places (cent precision end-to-end).
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount precision exceeds cents", domain.ErrValidation)
	}
	return nil
}

func capLimit(requested, cap int) int {
	if requested <= 0 || requested > cap {
		return cap
	}
	return requested
}
