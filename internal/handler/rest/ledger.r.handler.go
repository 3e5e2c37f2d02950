package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
	"ledger-service/internal/service"
	"ledger-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerRestHandler translates HTTP to usecase calls; it performs no
// financial validation of its own beyond parsing.
type LedgerRestHandler struct {
	accountUC   *usecase.AccountUsecase
	ledgerUC    *usecase.LedgerUsecase
	statementUC *usecase.StatementUsecase
	accrual     *service.AccrualService
	userRepo    repository.UserRepository
	jwtSecret   string
	log         *zap.Logger
}

func NewLedgerRestHandler(
	accountUC *usecase.AccountUsecase,
	ledgerUC *usecase.LedgerUsecase,
	statementUC *usecase.StatementUsecase,
	accrual *service.AccrualService,
	userRepo repository.UserRepository,
	jwtSecret string,
	log *zap.Logger,
) *LedgerRestHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerRestHandler{
		accountUC:   accountUC,
		ledgerUC:    ledgerUC,
		statementUC: statementUC,
		accrual:     accrual,
		userRepo:    userRepo,
		jwtSecret:   jwtSecret,
		log:         log,
	}
}

// Routes builds the chi router for the whole API surface.
func (h *LedgerRestHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/api/health", h.Health)
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/api/accounts", h.GetAccounts)
		r.Get("/api/accounts/{accountID}", h.GetAccount)
		r.Get("/api/accounts/{accountID}/transactions", h.GetAccountTransactions)
		r.Get("/api/accounts/{accountID}/statement", h.GetStatement)
		r.Post("/api/transfers", h.CreateTransfer)

		r.Get("/api/admin/users", h.AdminListUsers)
		r.Get("/api/admin/accounts", h.AdminListAccounts)
		r.Get("/api/admin/transactions", h.AdminListTransactions)
		r.Get("/api/admin/overview", h.AdminOverview)
		r.Post("/api/admin/credit-debit", h.AdminCreditDebit)
		r.Post("/api/admin/accruals/run", h.AdminRunAccruals)
		r.Patch("/api/admin/accounts/{accountID}/status", h.AdminSetAccountStatus)
	})

	return r
}

func (h *LedgerRestHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *LedgerRestHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	accounts, err := h.accountUC.GetUserAccounts(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *LedgerRestHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	account, err := h.accountUC.GetAccount(r.Context(), caller, chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

// parseFilter reads the optional from/to/type/limit query parameters.
func parseFilter(r *http.Request) (domain.TransactionFilter, error) {
	var f domain.TransactionFilter
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.To = &ts
	}
	if v := q.Get("type"); v != "" {
		kind := domain.TransactionKind(v)
		f.Kind = &kind
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	return f, nil
}

func (h *LedgerRestHandler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	accountID := chi.URLParam(r, "accountID")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter parameters")
		return
	}
	if filter.Kind != nil && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown transfer type")
		return
	}

	txns, err := h.ledgerUC.ListTransactions(r.Context(), caller, accountID, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *LedgerRestHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	accountID := chi.URLParam(r, "accountID")

	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}

	statement, err := h.statementUC.BuildStatement(r.Context(), caller, accountID, time.Month(month), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statement": statement})
}

type transferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransferType  string          `json:"transfer_type"`
	Description   string          `json:"description"`
	RecipientName string          `json:"recipient_name"`
	RecipientBank string          `json:"recipient_bank"`
	RoutingNumber string          `json:"routing_number"`
}

func (h *LedgerRestHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := usecase.TransferInput{
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         req.Amount,
		Kind:           domain.TransactionKind(req.TransferType),
		Description:    req.Description,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.RecipientName != "" || req.RecipientBank != "" || req.RoutingNumber != "" {
		in.Recipient = &usecase.RecipientInfo{
			Name:          req.RecipientName,
			Bank:          req.RecipientBank,
			RoutingNumber: req.RoutingNumber,
		}
	}

	record, err := h.ledgerUC.Transfer(r.Context(), caller, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Transfer initiated successfully",
		"transaction": record,
	})
}

func (h *LedgerRestHandler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	users, err := h.accountUC.ListUsers(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *LedgerRestHandler) AdminListAccounts(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	accounts, err := h.accountUC.ListAllAccounts(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *LedgerRestHandler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter parameters")
		return
	}

	txns, err := h.ledgerUC.ListAllTransactions(r.Context(), caller, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *LedgerRestHandler) AdminOverview(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	overview, err := h.statementUC.AdminOverview(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overview": overview})
}

type creditDebitRequest struct {
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type"` // credit | debit
	Description     string          `json:"description"`
	Backdate        *string         `json:"backdate,omitempty"`
}

func (h *LedgerRestHandler) AdminCreditDebit(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req creditDebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.ledgerUC.AdminAdjust(r.Context(), caller, usecase.AdjustInput{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Direction:   usecase.AdjustDirection(req.TransactionType),
		Description: req.Description,
		Backdate:    req.Backdate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Account " + req.TransactionType + " successful",
		"transaction": record,
	})
}

// AdminRunAccruals kicks off the monthly interest and fee run and
// returns its summary. The run is synchronous; at demo scale it
// completes well within the request timeout.
func (h *LedgerRestHandler) AdminRunAccruals(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if !caller.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	report, err := h.accrual.RunMonthly(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Accrual run completed",
		"report": map[string]any{
			"accounts_visited":  report.Accounts,
			"interest_credited": report.InterestCredited,
			"fees_assessed":     report.FeesAssessed,
			"failures":          report.Failures,
		},
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *LedgerRestHandler) AdminSetAccountStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	accountID := chi.URLParam(r, "accountID")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.accountUC.SetAccountStatus(r.Context(), caller, accountID, domain.AccountStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account status updated"})
}
