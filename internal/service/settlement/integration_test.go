package settlement_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
	"github.com/josh-kwaku/agency-ledger/internal/ledger"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/notify"
	"github.com/josh-kwaku/agency-ledger/internal/repository"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
	"github.com/josh-kwaku/agency-ledger/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.PaymentReceived
}

func (n *recordingNotifier) PaymentReceived(_ context.Context, e notify.PaymentReceived) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) received() []notify.PaymentReceived {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.PaymentReceived(nil), n.events...)
}

func setupService(t *testing.T, db *sql.DB, locker lock.Locker, notifier notify.Notifier) *settlement.Service {
	t.Helper()

	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	resolver := fx.NewResolver(repository.NewExchangeRateRepository(db), fx.Options{RoundingPlaces: 2})

	svc := settlement.NewService(settlement.Deps{
		DB:         db,
		Payments:   repository.NewPaymentRepository(db),
		Debts:      repository.NewOperatorPaymentRepository(db),
		Movements:  ledgerRepo,
		Cash:       repository.NewCashMovementRepository(db),
		Events:     repository.NewPaymentEventRepository(db),
		Tasks:      repository.NewPostingTaskRepository(db),
		Operations: repository.NewOperationRepository(db),
		Accounts:   accountRepo,
		Rates:      resolver,
		Locator:    accounts.NewLocator(repository.NewChartAccountRepository(db), accountRepo),
		Poster:     ledger.NewPoster(ledgerRepo, accountRepo, 2),
		Locker:     locker,
		Notifier:   notifier,
	}, 2)
	t.Cleanup(svc.Wait)
	return svc
}

func customerPayment(t *testing.T, svc *settlement.Service, op *domain.Operation, amount string, currency domain.Currency, rate *decimal.Decimal) *domain.Payment {
	t.Helper()

	p, err := svc.CreatePayment(context.Background(), settlement.CreatePaymentRequest{
		OperationID:  &op.ID,
		PayerType:    domain.PayerTypeCustomer,
		Direction:    domain.DirectionIncome,
		Method:       domain.PaymentMethodTransfer,
		Amount:       testutil.Dec(amount),
		Currency:     currency,
		ExchangeRate: rate,
	})
	require.NoError(t, err)
	return p
}

func operatorPayment(t *testing.T, svc *settlement.Service, debt *domain.OperatorPayment, amount string, rate *decimal.Decimal) *domain.Payment {
	t.Helper()

	p, err := svc.CreatePayment(context.Background(), settlement.CreatePaymentRequest{
		OperationID:       debt.OperationID,
		OperatorPaymentID: &debt.ID,
		PayerType:         domain.PayerTypeOperator,
		Direction:         domain.DirectionExpense,
		Method:            domain.PaymentMethodTransfer,
		Amount:            testutil.Dec(amount),
		Currency:          debt.Currency,
		ExchangeRate:      rate,
	})
	require.NoError(t, err)
	return p
}

func TestSettle_ForeignCustomerPaymentPostsBaseEquivalent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	notifier := &recordingNotifier{}
	svc := setupService(t, db, lock.NewLocalLocker(), notifier)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{
		SaleAmount:   testutil.Dec("1000"),
		SaleCurrency: domain.CurrencyUSD,
	})
	p := customerPayment(t, svc, op, "1000", domain.CurrencyUSD, testutil.DecPtr("1000"))

	out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID, Reference: "TRX-1"})
	require.NoError(t, err)

	assert.False(t, out.Replayed)
	assert.False(t, out.Degraded)
	assert.True(t, out.BaseAmount.Equal(testutil.Dec("1000000")), "base amount %s", out.BaseAmount)
	assert.Len(t, out.Movements, 3)
	assert.Equal(t, domain.PaymentStatusPaid, out.Payment.Status)
	require.NotNil(t, out.Payment.LedgerMovementID)

	receivable := testutil.LinkedAccountID(t, db, accounts.CodeReceivable, domain.CurrencyUSD)
	require.NotEqual(t, uuid.Nil, receivable)
	assert.True(t, testutil.AccountNet(t, db, receivable).Equal(testutil.Dec("1000000")))

	assert.Equal(t, 3, testutil.CountMovements(t, db, p.ID))
	assert.Equal(t, 1, testutil.CountCashMovements(t, db, p.ID))
	assert.Equal(t, 1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeSettled))

	stored, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRX-1", stored.Reference)
	assert.Equal(t, *out.Payment.LedgerMovementID, *stored.LedgerMovementID)

	svc.Wait()
	events := notifier.received()
	require.Len(t, events, 1)
	assert.Equal(t, p.ID, events[0].PaymentID)
	assert.Equal(t, "USD", events[0].Currency)
}

func TestSettle_ReplayOnlyRefreshesSettlementInfo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("50000")})
	p := customerPayment(t, svc, op, "50000", domain.CurrencyARS, nil)

	first, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID, Reference: "first"})
	require.NoError(t, err)

	later := time.Now().UTC().AddDate(0, 0, 2).Truncate(24 * time.Hour)
	second, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID, Reference: "second", DatePaid: later})
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Empty(t, second.Movements)
	assert.Equal(t, *first.Payment.LedgerMovementID, *second.Payment.LedgerMovementID)
	assert.Equal(t, 3, testutil.CountMovements(t, db, p.ID))
	assert.Equal(t, 1, testutil.CountCashMovements(t, db, p.ID))
	assert.Equal(t, 1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeSettlementReplayed))

	stored, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Reference)
	require.NotNil(t, stored.DatePaid)
	assert.True(t, later.Equal(stored.DatePaid.UTC()))
}

func TestSettle_ReplayWithoutDateKeepsDatePaid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("50000")})
	p := customerPayment(t, svc, op, "50000", domain.CurrencyARS, nil)

	earlier := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)
	_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID, Reference: "REC-7", DatePaid: earlier})
	require.NoError(t, err)

	again, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	require.NotNil(t, again.Payment.DatePaid)
	assert.Equal(t, earlier.Format(time.DateOnly), again.Payment.DatePaid.UTC().Format(time.DateOnly))

	stored, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "REC-7", stored.Reference)
	require.NotNil(t, stored.DatePaid)
	assert.Equal(t, earlier.Format(time.DateOnly), stored.DatePaid.UTC().Format(time.DateOnly))
}

func TestSettle_ConcurrentCallsPostOnce(t *testing.T) {
	lockers := map[string]func() lock.Locker{
		"local locker":  func() lock.Locker { return lock.NewLocalLocker() },
		"row lock only": func() lock.Locker { return lock.NopLocker{} },
	}

	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := setupService(t, db, newLocker(), nil)
			ctx := context.Background()

			op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("1000")})
			p := customerPayment(t, svc, op, "1000", domain.CurrencyARS, nil)

			const n = 8
			var wg sync.WaitGroup
			outcomes := make(chan *settlement.Outcome, n)
			errs := make(chan error, n)
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
					if err != nil {
						errs <- err
						return
					}
					outcomes <- out
				}()
			}
			wg.Wait()
			close(outcomes)
			close(errs)

			for err := range errs {
				t.Errorf("settle: %v", err)
			}
			fresh := 0
			for out := range outcomes {
				if !out.Replayed {
					fresh++
				}
			}
			assert.Equal(t, 1, fresh)
			assert.Equal(t, 3, testutil.CountMovements(t, db, p.ID))
			assert.Equal(t, 1, testutil.CountCashMovements(t, db, p.ID))
			assert.Equal(t, 1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeSettled))
			assert.Equal(t, n-1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeSettlementReplayed))
		})
	}
}

func TestSettle_PartialOperatorPayments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("1500"), CostAmount: testutil.Dec("1000")})
	debt := testutil.SeedOperatorPayment(t, db, &op.ID, uuid.New(), testutil.Dec("1000"), domain.CurrencyARS)

	first := operatorPayment(t, svc, debt, "600", nil)
	_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: first.ID})
	require.NoError(t, err)

	bal, err := svc.OperatorDebtBalance(ctx, debt.ID)
	require.NoError(t, err)
	assert.True(t, bal.Paid.Equal(testutil.Dec("600")))
	assert.True(t, bal.Outstanding.Equal(testutil.Dec("400")))
	assert.Equal(t, domain.DebtStatusPending, bal.Status)

	second := operatorPayment(t, svc, debt, "400", nil)
	_, err = svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: second.ID})
	require.NoError(t, err)

	bal, err = svc.OperatorDebtBalance(ctx, debt.ID)
	require.NoError(t, err)
	assert.True(t, bal.Outstanding.IsZero())
	assert.Equal(t, domain.DebtStatusPaid, bal.Status)

	payable := testutil.LinkedAccountID(t, db, accounts.CodePayable, domain.CurrencyARS)
	assert.True(t, testutil.AccountNet(t, db, payable).Equal(testutil.Dec("1000")))
	assert.Equal(t, 1, testutil.CountMovementsOfType(t, db, first.ID, domain.MovementTypeOperatorPayment))

	extra := operatorPayment(t, svc, debt, "1", nil)
	_, err = svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: extra.ID})
	require.ErrorIs(t, err, domain.ErrOverpayment)
	assert.Equal(t, 0, testutil.CountMovements(t, db, extra.ID))
	assert.Equal(t, 0, testutil.CountCashMovements(t, db, extra.ID))
}

func TestSettle_RateUnavailableWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("100"), SaleCurrency: domain.CurrencyUSD})
	p := customerPayment(t, svc, op, "100", domain.CurrencyUSD, nil)

	_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
	require.ErrorIs(t, err, domain.ErrRateUnavailable)
	assert.Equal(t, domain.KindRateUnavailable, domain.Kind(err))

	stored, err := svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.LedgerMovementID)
	assert.Equal(t, 0, testutil.CountMovements(t, db, p.ID))
	assert.Equal(t, 0, testutil.CountCashMovements(t, db, p.ID))
	assert.Equal(t, 0, testutil.CountRows(t, db, "financial_accounts"))

	testutil.SeedRate(t, db, time.Now().UTC().AddDate(0, 0, -3), domain.CurrencyUSD, testutil.Dec("950"), "bna")
	out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
	require.NoError(t, err)
	assert.True(t, out.BaseAmount.Equal(testutil.Dec("95000")))
}

func TestSettle_InactiveChartFallsBackToBucket(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	testutil.SetChartActive(t, db, accounts.CodeSales, false)
	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("700")})
	p := customerPayment(t, svc, op, "700", domain.CurrencyARS, nil)

	out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
	require.NoError(t, err)

	assert.True(t, out.Degraded)
	assert.Equal(t, 3, testutil.CountMovements(t, db, p.ID))
	assert.Equal(t, uuid.Nil, testutil.LinkedAccountID(t, db, accounts.CodeSales, domain.CurrencyARS))
}

func TestSettle_FundingAccountValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	cashBox := testutil.SeedAccount(t, db, "Front desk", domain.AccountTypeCash, domain.CurrencyARS, true)
	closedBank := testutil.SeedAccount(t, db, "Closed bank", domain.AccountTypeBank, domain.CurrencyARS, false)
	usdBank := testutil.SeedAccount(t, db, "USD bank", domain.AccountTypeBank, domain.CurrencyUSD, true)
	missing := uuid.New()

	tests := []struct {
		name    string
		account uuid.UUID
		wantErr error
	}{
		{"transfer into cash box", cashBox.ID, domain.ErrAccountTypeMismatch},
		{"inactive account", closedBank.ID, domain.ErrAccountInactive},
		{"currency mismatch", usdBank.ID, domain.ErrCurrencyMismatch},
		{"unknown account", missing, domain.ErrAccountNotFound},
	}

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("100")})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := customerPayment(t, svc, op, "10", domain.CurrencyARS, nil)
			account := tt.account

			_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID, FundingAccountID: &account})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, testutil.CountMovements(t, db, p.ID))
		})
	}
}

func TestSettle_LegacyPaidPaymentIsBackfilled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("2500")})
	id := testutil.SeedLegacyPaidPayment(t, db, op.ID, testutil.Dec("2500"), domain.CurrencyARS, nil)

	out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: id})
	require.NoError(t, err)
	assert.True(t, out.Backfilled)
	assert.False(t, out.Replayed)
	assert.Equal(t, 3, testutil.CountMovements(t, db, id))

	again, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: id})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 3, testutil.CountMovements(t, db, id))
}

func TestSettle_FXDifference(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	operatorID := uuid.New()
	op := testutil.SeedOperation(t, db, testutil.OperationSeed{
		SaleAmount:       testutil.Dec("1000"),
		SaleCurrency:     domain.CurrencyUSD,
		SaleExchangeRate: testutil.DecPtr("900"),
		CostAmount:       testutil.Dec("500"),
		CostCurrency:     domain.CurrencyUSD,
		CostExchangeRate: testutil.DecPtr("1000"),
		OperatorID:       &operatorID,
	})

	t.Run("customer collects above the sale rate", func(t *testing.T) {
		p := customerPayment(t, svc, op, "1000", domain.CurrencyUSD, testutil.DecPtr("1000"))
		out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
		require.NoError(t, err)

		require.NotNil(t, out.FXMovement)
		assert.Equal(t, domain.MovementTypeFXGain, out.FXMovement.Type)
		assert.True(t, out.FXMovement.AmountOriginal.Equal(testutil.Dec("100000")), "gain %s", out.FXMovement.AmountOriginal)
		assert.Equal(t, domain.CurrencyARS, out.FXMovement.Currency)

		again, err := svc.EvaluateFX(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, again)
		assert.Equal(t, 1, testutil.CountMovementsOfType(t, db, p.ID, domain.MovementTypeFXGain))
		assert.Equal(t, 1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeFXPosted))
	})

	t.Run("operator paid above the cost rate", func(t *testing.T) {
		debt := testutil.SeedOperatorPayment(t, db, &op.ID, operatorID, testutil.Dec("500"), domain.CurrencyUSD)
		p := operatorPayment(t, svc, debt, "500", testutil.DecPtr("1100"))
		out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
		require.NoError(t, err)

		require.NotNil(t, out.FXMovement)
		assert.Equal(t, domain.MovementTypeFXLoss, out.FXMovement.Type)
		assert.True(t, out.FXMovement.AmountOriginal.Equal(testutil.Dec("50000")), "loss %s", out.FXMovement.AmountOriginal)
	})

	t.Run("base payment without a rate is deferred", func(t *testing.T) {
		p := customerPayment(t, svc, op, "900000", domain.CurrencyARS, nil)
		out, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
		require.NoError(t, err)
		assert.True(t, out.FXDeferred)
		assert.Nil(t, out.FXMovement)
		assert.Equal(t, 1, testutil.CountRows(t, db, "posting_tasks"))

		testutil.SeedRate(t, db, time.Now().UTC(), domain.CurrencyUSD, testutil.Dec("1000"), "bna")
		m, err := svc.EvaluateFX(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, domain.MovementTypeFXGain, m.Type)
		assert.True(t, m.AmountOriginal.Equal(testutil.Dec("90000")), "gain %s", m.AmountOriginal)
	})
}

func TestDeletePayment_RevertsDebtAndPostings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{CostAmount: testutil.Dec("1000")})
	debt := testutil.SeedOperatorPayment(t, db, &op.ID, uuid.New(), testutil.Dec("1000"), domain.CurrencyARS)
	p := operatorPayment(t, svc, debt, "1000", nil)
	_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: p.ID})
	require.NoError(t, err)

	settled, err := svc.GetOperatorPayment(ctx, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtStatusPaid, settled.Status)

	res, err := svc.DeletePayment(ctx, p.ID, settlement.Actor{Source: "test"})
	require.NoError(t, err)
	assert.True(t, res.DebtReverted)
	assert.Equal(t, int64(3), res.MovementsDeleted)
	assert.Equal(t, int64(1), res.CashDeleted)
	assert.Equal(t, domain.DebtStatusPending, res.DebtStatus)

	reverted, err := svc.GetOperatorPayment(ctx, debt.ID)
	require.NoError(t, err)
	assert.True(t, reverted.PaidAmount.IsZero())
	assert.Equal(t, domain.DebtStatusPending, reverted.Status)

	_, err = svc.GetPayment(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, testutil.CountMovements(t, db, p.ID))
	assert.Equal(t, 1, testutil.CountEvents(t, db, p.ID, domain.PaymentEventTypeDeleted))

	history, err := svc.PaymentHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.PaymentEventTypeCreated, history[0].EventType)
	assert.Equal(t, domain.PaymentEventTypeDeleted, history[2].EventType)
	assert.Equal(t, "test", history[2].Actor)

	_, err = svc.PaymentHistory(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletePayment_PendingLeavesDebtAlone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	debt := testutil.SeedOperatorPayment(t, db, nil, uuid.New(), testutil.Dec("300"), domain.CurrencyARS)
	p := operatorPayment(t, svc, debt, "300", nil)

	res, err := svc.DeletePayment(ctx, p.ID, settlement.Actor{})
	require.NoError(t, err)
	assert.False(t, res.DebtReverted)
	assert.Zero(t, res.MovementsDeleted)
}

func TestSettleBulk(t *testing.T) {
	t.Run("overpaid line fails alone", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := setupService(t, db, lock.NewLocalLocker(), nil)
		ctx := context.Background()

		operatorID := uuid.New()
		bank := testutil.SeedAccount(t, db, "Main bank", domain.AccountTypeBank, domain.CurrencyARS, true)
		a := testutil.SeedOperatorPayment(t, db, nil, operatorID, testutil.Dec("1000"), domain.CurrencyARS)
		b := testutil.SeedOperatorPayment(t, db, nil, operatorID, testutil.Dec("500"), domain.CurrencyARS)
		other := testutil.SeedOperatorPayment(t, db, nil, uuid.New(), testutil.Dec("100"), domain.CurrencyARS)

		res, err := svc.SettleBulk(ctx, settlement.BulkRequest{
			OperatorID:       operatorID,
			Currency:         domain.CurrencyARS,
			FundingAccountID: bank.ID,
			FundingCurrency:  domain.CurrencyARS,
			Reference:        "BATCH-7",
			Lines: []settlement.BulkLine{
				{OperatorPaymentID: a.ID, Amount: testutil.Dec("1000")},
				{OperatorPaymentID: b.ID, Amount: testutil.Dec("600")},
				{OperatorPaymentID: other.ID, Amount: testutil.Dec("100")},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Lines, 3)
		assert.Equal(t, 1, res.Settled)
		assert.Equal(t, 2, res.Failed)

		assert.Equal(t, settlement.LineStatusSettled, res.Lines[0].Status)
		assert.Equal(t, domain.DebtStatusPaid, res.Lines[0].DebtStatus)
		assert.ErrorIs(t, res.Lines[1].Err, domain.ErrOverpayment)
		assert.ErrorIs(t, res.Lines[2].Err, domain.ErrOperatorMismatch)

		untouched, err := svc.GetOperatorPayment(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, untouched.PaidAmount.IsZero())
		assert.Equal(t, 1, testutil.CountRows(t, db, "payments"))
	})

	t.Run("usd debts from an ars account", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := setupService(t, db, lock.NewLocalLocker(), nil)
		ctx := context.Background()

		operatorID := uuid.New()
		bank := testutil.SeedAccount(t, db, "Main bank", domain.AccountTypeBank, domain.CurrencyARS, true)
		debt := testutil.SeedOperatorPayment(t, db, nil, operatorID, testutil.Dec("100"), domain.CurrencyUSD)

		res, err := svc.SettleBulk(ctx, settlement.BulkRequest{
			OperatorID:       operatorID,
			Currency:         domain.CurrencyUSD,
			FundingAccountID: bank.ID,
			FundingCurrency:  domain.CurrencyARS,
			ExchangeRate:     testutil.DecPtr("1000"),
			Lines:            []settlement.BulkLine{{OperatorPaymentID: debt.ID, Amount: testutil.Dec("100")}},
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.Settled, "line: %+v", res.Lines)

		paymentID := *res.Lines[0].PaymentID
		var cashAmount decimal.Decimal
		var cashCurrency string
		require.NoError(t, db.QueryRow(
			`SELECT amount, currency FROM cash_movements WHERE payment_id = $1`, paymentID,
		).Scan(&cashAmount, &cashCurrency))
		assert.True(t, cashAmount.Equal(testutil.Dec("100000")))
		assert.Equal(t, "ARS", cashCurrency)
		assert.True(t, testutil.AccountNet(t, db, bank.ID).Equal(testutil.Dec("-100000")))

		movements, err := svc.PaymentMovements(ctx, paymentID)
		require.NoError(t, err)
		for _, m := range movements {
			assert.True(t, m.AmountBaseEquivalent.Equal(testutil.Dec("100000")), "%s on %s", m.AmountBaseEquivalent, m.AccountID)
		}
	})

	t.Run("two batches pay one usd debt in full", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := setupService(t, db, lock.NewLocalLocker(), nil)
		ctx := context.Background()

		operatorID := uuid.New()
		bank := testutil.SeedAccount(t, db, "Main bank", domain.AccountTypeBank, domain.CurrencyARS, true)
		debt := testutil.SeedOperatorPayment(t, db, nil, operatorID, testutil.Dec("1000"), domain.CurrencyUSD)

		batch := func(amount string) settlement.BulkRequest {
			return settlement.BulkRequest{
				OperatorID:       operatorID,
				Currency:         domain.CurrencyUSD,
				FundingAccountID: bank.ID,
				FundingCurrency:  domain.CurrencyARS,
				ExchangeRate:     testutil.DecPtr("1000"),
				Lines:            []settlement.BulkLine{{OperatorPaymentID: debt.ID, Amount: testutil.Dec(amount)}},
			}
		}

		first, err := svc.SettleBulk(ctx, batch("600"))
		require.NoError(t, err)
		require.Equal(t, 1, first.Settled, "line: %+v", first.Lines)
		assert.Equal(t, domain.DebtStatusPending, first.Lines[0].DebtStatus)

		partial, err := svc.GetOperatorPayment(ctx, debt.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DebtStatusPending, partial.Status)
		assert.True(t, partial.PaidAmount.Equal(testutil.Dec("600")), "paid %s", partial.PaidAmount)

		second, err := svc.SettleBulk(ctx, batch("400"))
		require.NoError(t, err)
		require.Equal(t, 1, second.Settled, "line: %+v", second.Lines)
		assert.Equal(t, domain.DebtStatusPaid, second.Lines[0].DebtStatus)

		paid, err := svc.GetOperatorPayment(ctx, debt.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DebtStatusPaid, paid.Status)
		assert.True(t, paid.PaidAmount.Equal(testutil.Dec("1000")), "paid %s", paid.PaidAmount)

		payable := testutil.LinkedAccountID(t, db, accounts.CodePayable, domain.CurrencyUSD)
		require.NotEqual(t, uuid.Nil, payable)

		var reductions int
		var reduced decimal.Decimal
		require.NoError(t, db.QueryRow(
			`SELECT COUNT(*), COALESCE(SUM(amount_original), 0) FROM ledger_movements WHERE account_id = $1`, payable,
		).Scan(&reductions, &reduced))
		assert.Equal(t, 2, reductions)
		assert.True(t, reduced.Equal(testutil.Dec("1000")), "reduced %s", reduced)
	})

	t.Run("cross currency without a rate is rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := setupService(t, db, lock.NewLocalLocker(), nil)

		bank := testutil.SeedAccount(t, db, "USD cash", domain.AccountTypeUSD, domain.CurrencyUSD, true)
		_, err := svc.SettleBulk(context.Background(), settlement.BulkRequest{
			OperatorID:       uuid.New(),
			Currency:         domain.CurrencyARS,
			FundingAccountID: bank.ID,
			FundingCurrency:  domain.CurrencyUSD,
			Lines:            []settlement.BulkLine{{OperatorPaymentID: uuid.New(), Amount: testutil.Dec("1")}},
		})
		require.ErrorIs(t, err, domain.ErrRateRequired)
	})
}

func TestCustomerBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	op := testutil.SeedOperation(t, db, testutil.OperationSeed{SaleAmount: testutil.Dec("1000"), SaleCurrency: domain.CurrencyUSD})
	usd := customerPayment(t, svc, op, "400", domain.CurrencyUSD, testutil.DecPtr("1000"))
	ars := customerPayment(t, svc, op, "100000", domain.CurrencyARS, nil)
	customerPayment(t, svc, op, "500", domain.CurrencyUSD, testutil.DecPtr("1000"))

	testutil.SeedRate(t, db, time.Now().UTC(), domain.CurrencyUSD, testutil.Dec("1000"), "bna")
	for _, id := range []uuid.UUID{usd.ID, ars.ID} {
		_, err := svc.SettlePayment(ctx, settlement.SettleRequest{PaymentID: id})
		require.NoError(t, err)
	}

	bal, err := svc.CustomerBalance(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyUSD, bal.Currency)
	assert.True(t, bal.Paid.Equal(testutil.Dec("500")), "paid %s", bal.Paid)
	assert.True(t, bal.Outstanding.Equal(testutil.Dec("500")), "outstanding %s", bal.Outstanding)
}

func TestCreatePayment_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupService(t, db, lock.NewLocalLocker(), nil)
	ctx := context.Background()

	usdDebt := testutil.SeedOperatorPayment(t, db, nil, uuid.New(), testutil.Dec("10"), domain.CurrencyUSD)
	missingOp := uuid.New()

	tests := []struct {
		name    string
		req     settlement.CreatePaymentRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     settlement.CreatePaymentRequest{PayerType: domain.PayerTypeCustomer, Direction: domain.DirectionIncome, Method: domain.PaymentMethodCash, Currency: domain.CurrencyARS},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown method",
			req:     settlement.CreatePaymentRequest{PayerType: domain.PayerTypeCustomer, Direction: domain.DirectionIncome, Method: "CHEQUE", Amount: testutil.Dec("1"), Currency: domain.CurrencyARS},
			wantErr: domain.ErrInvalidMethod,
		},
		{
			name:    "negative rate",
			req:     settlement.CreatePaymentRequest{PayerType: domain.PayerTypeCustomer, Direction: domain.DirectionIncome, Method: domain.PaymentMethodCash, Amount: testutil.Dec("1"), Currency: domain.CurrencyUSD, ExchangeRate: testutil.DecPtr("-1")},
			wantErr: domain.ErrInvalidRate,
		},
		{
			name:    "unknown operation",
			req:     settlement.CreatePaymentRequest{OperationID: &missingOp, PayerType: domain.PayerTypeCustomer, Direction: domain.DirectionIncome, Method: domain.PaymentMethodCash, Amount: testutil.Dec("1"), Currency: domain.CurrencyARS},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "debt in another currency",
			req:     settlement.CreatePaymentRequest{OperatorPaymentID: &usdDebt.ID, PayerType: domain.PayerTypeOperator, Direction: domain.DirectionExpense, Method: domain.PaymentMethodTransfer, Amount: testutil.Dec("1"), Currency: domain.CurrencyARS},
			wantErr: domain.ErrCurrencyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePayment(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
