package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const DefaultTestPassword = "password123"

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func DecPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func SeedUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultTestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

type OperationSeed struct {
	SaleAmount       decimal.Decimal
	SaleCurrency     domain.Currency
	SaleExchangeRate *decimal.Decimal
	CostAmount       decimal.Decimal
	CostCurrency     domain.Currency
	CostExchangeRate *decimal.Decimal
	OperatorID       *uuid.UUID
}

func SeedOperation(t *testing.T, db *sql.DB, s OperationSeed) *domain.Operation {
	t.Helper()

	if s.SaleCurrency == "" {
		s.SaleCurrency = domain.CurrencyARS
	}
	if s.CostCurrency == "" {
		s.CostCurrency = s.SaleCurrency
	}
	lead, seller := uuid.New(), uuid.New()
	op := &domain.Operation{
		ID:               uuid.New(),
		FileCode:         "OP-" + uuid.NewString()[:8],
		CustomerName:     "Test Customer",
		OperatorID:       s.OperatorID,
		SellerID:         &seller,
		LeadID:           &lead,
		SaleAmount:       s.SaleAmount,
		SaleCurrency:     s.SaleCurrency,
		SaleExchangeRate: s.SaleExchangeRate,
		CostAmount:       s.CostAmount,
		CostCurrency:     s.CostCurrency,
		CostExchangeRate: s.CostExchangeRate,
		CreatedAt:        time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO operations (id, file_code, customer_name, operator_id, seller_id, lead_id,
			sale_amount, sale_currency, sale_exchange_rate, cost_amount, cost_currency, cost_exchange_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		op.ID, op.FileCode, op.CustomerName, op.OperatorID, op.SellerID, op.LeadID,
		op.SaleAmount, op.SaleCurrency, op.SaleExchangeRate, op.CostAmount, op.CostCurrency, op.CostExchangeRate,
	)
	if err != nil {
		t.Fatalf("seed operation: %v", err)
	}
	return op
}

func SeedOperatorPayment(t *testing.T, db *sql.DB, operationID *uuid.UUID, operatorID uuid.UUID, amount decimal.Decimal, currency domain.Currency) *domain.OperatorPayment {
	t.Helper()

	now := time.Now().UTC()
	d := &domain.OperatorPayment{
		ID:          uuid.New(),
		OperationID: operationID,
		OperatorID:  operatorID,
		Amount:      amount,
		PaidAmount:  decimal.Zero,
		Currency:    currency,
		DueDate:     now.AddDate(0, 0, 30).Truncate(24 * time.Hour),
		Status:      domain.DebtStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.Exec(
		`INSERT INTO operator_payments (id, operation_id, operator_id, amount, paid_amount, currency, due_date, status)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		d.ID, d.OperationID, d.OperatorID, d.Amount, d.Currency, d.DueDate, d.Status,
	)
	if err != nil {
		t.Fatalf("seed operator payment: %v", err)
	}
	return d
}

// SeedLegacyPaidPayment inserts a payment already marked PAID with no ledger
// movement, the shape left behind by the old back-office flow.
func SeedLegacyPaidPayment(t *testing.T, db *sql.DB, operationID uuid.UUID, amount decimal.Decimal, currency domain.Currency, rate *decimal.Decimal) uuid.UUID {
	t.Helper()

	id := uuid.New()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	_, err := db.Exec(
		`INSERT INTO payments (id, operation_id, payer_type, direction, method, amount, currency,
			exchange_rate, date_due, date_paid, status)
		 VALUES ($1, $2, 'CUSTOMER', 'INCOME', 'TRANSFER', $3, $4, $5, $6, $6, 'PAID')`,
		id, operationID, amount, currency, rate, today,
	)
	if err != nil {
		t.Fatalf("seed legacy payment: %v", err)
	}
	return id
}

func SeedRate(t *testing.T, db *sql.DB, date time.Time, currency domain.Currency, rate decimal.Decimal, source string) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO exchange_rates (id, rate_date, currency, rate, source) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), date, currency, rate, source,
	)
	if err != nil {
		t.Fatalf("seed rate %s %s: %v", currency, date.Format(time.DateOnly), err)
	}
}

func SeedAccount(t *testing.T, db *sql.DB, name string, typ domain.AccountType, currency domain.Currency, active bool) *domain.FinancialAccount {
	t.Helper()

	a := &domain.FinancialAccount{
		ID:             uuid.New(),
		Name:           name,
		Type:           typ,
		Currency:       currency,
		InitialBalance: decimal.Zero,
		IsActive:       active,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO financial_accounts (id, name, type, currency, initial_balance, is_active, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		a.ID, a.Name, a.Type, a.Currency, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", name, err)
	}
	return a
}

func SetChartActive(t *testing.T, db *sql.DB, code string, active bool) {
	t.Helper()

	if _, err := db.Exec(`UPDATE chart_accounts SET is_active = $2 WHERE code = $1`, code, active); err != nil {
		t.Fatalf("set chart %s active=%v: %v", code, active, err)
	}
}

func CountMovements(t *testing.T, db *sql.DB, paymentID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM ledger_movements WHERE payment_id = $1`, paymentID)
}

func CountMovementsOfType(t *testing.T, db *sql.DB, paymentID uuid.UUID, typ domain.MovementType) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM ledger_movements WHERE payment_id = $1 AND type = $2`, paymentID, typ)
}

func CountCashMovements(t *testing.T, db *sql.DB, paymentID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM cash_movements WHERE payment_id = $1`, paymentID)
}

func CountEvents(t *testing.T, db *sql.DB, paymentID uuid.UUID, eventType domain.PaymentEventType) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM payment_events WHERE payment_id = $1 AND event_type = $2`, paymentID, eventType)
}

func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM `+table)
}

// LinkedAccountID returns the ledger account attached to a chart code for
// currency, or uuid.Nil when none exists yet.
func LinkedAccountID(t *testing.T, db *sql.DB, code string, currency domain.Currency) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(
		`SELECT fa.id FROM financial_accounts fa
		 JOIN chart_accounts ca ON ca.id = fa.chart_account_id
		 WHERE ca.code = $1 AND fa.currency = $2`, code, currency,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil
	}
	if err != nil {
		t.Fatalf("linked account %s/%s: %v", code, currency, err)
	}
	return id
}

// AccountNet sums base-equivalent inflows minus outflows for an account.
func AccountNet(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var net decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN type IN ('INCOME', 'FX_GAIN') THEN amount_base_equivalent
		                          ELSE -amount_base_equivalent END), 0)
		 FROM ledger_movements WHERE account_id = $1`, accountID,
	).Scan(&net)
	if err != nil {
		t.Fatalf("account net %s: %v", accountID, err)
	}
	return net
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
