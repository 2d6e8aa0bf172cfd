package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error)
	Create(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error
	List(ctx context.Context) ([]domain.FinancialAccount, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// AccountService manages the funding accounts money actually moves
// through: cash boxes, bank accounts, Mercado Pago wallets and USD cash.
// Chart-linked LEDGER accounts are created by the settlement engine only.
type AccountService struct {
	db       *sql.DB
	accounts accountRepo
}

func NewAccountService(db *sql.DB, accounts accountRepo) *AccountService {
	return &AccountService{db: db, accounts: accounts}
}

type CreateAccountRequest struct {
	Name           string
	Type           domain.AccountType
	Currency       domain.Currency
	BankName       string
	AccountNumber  string
	CardLastFour   string
	InitialBalance decimal.Decimal
}

func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.FinancialAccount, error) {
	log := logging.FromContext(ctx)

	if err := validateAccountRequest(req); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	account := &domain.FinancialAccount{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(req.Name),
		Type:           req.Type,
		Currency:       req.Currency,
		BankName:       optional(req.BankName),
		AccountNumber:  optional(req.AccountNumber),
		CardLastFour:   optional(req.CardLastFour),
		InitialBalance: req.InitialBalance,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.accounts.Create(ctx, tx, account); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateAccount: commit: %w", err)
	}

	log.Info("funding account created",
		"account_id", account.ID,
		"type", account.Type,
		"currency", account.Currency,
	)

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.FinancialAccount, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

// SetActive toggles whether an account can fund new settlements. Postings
// already made against it are untouched.
func (s *AccountService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.FinancialAccount, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("SetActive: %w", err)
	}
	if account.Type == domain.AccountTypeLedger {
		return nil, fmt.Errorf("SetActive: ledger accounts follow their chart entry: %w", domain.ErrInvalidRequest)
	}
	if err := s.accounts.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("SetActive: %w", err)
	}
	account.IsActive = active

	logging.FromContext(ctx).Info("funding account updated", "account_id", id, "active", active)
	return account, nil
}

func validateAccountRequest(req CreateAccountRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidRequest)
	}
	if !req.Currency.IsValid() {
		return domain.ErrInvalidCurrency
	}
	switch req.Type {
	case domain.AccountTypeCash, domain.AccountTypeBank, domain.AccountTypeMP:
	case domain.AccountTypeUSD:
		if req.Currency != domain.CurrencyUSD {
			return fmt.Errorf("USD accounts hold dollars only: %w", domain.ErrCurrencyMismatch)
		}
	default:
		return fmt.Errorf("account type %q: %w", req.Type, domain.ErrInvalidRequest)
	}
	if req.InitialBalance.IsNegative() {
		return fmt.Errorf("initial balance: %w", domain.ErrInvalidAmount)
	}
	if req.CardLastFour != "" && len(req.CardLastFour) != 4 {
		return fmt.Errorf("card_last_four must have 4 digits: %w", domain.ErrInvalidRequest)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
