package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
	"github.com/josh-kwaku/agency-ledger/internal/ledger"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/notify"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
)

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	ListByOperation(ctx context.Context, operationID uuid.UUID) ([]domain.Payment, error)
	MarkSettled(ctx context.Context, tx *sql.Tx, id uuid.UUID, datePaid time.Time, reference string, ledgerMovementID uuid.UUID) error
	UpdateSettlementInfo(ctx context.Context, tx *sql.Tx, id uuid.UUID, datePaid time.Time, reference string) error
	Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type debtRepo interface {
	Create(ctx context.Context, d *domain.OperatorPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OperatorPayment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.OperatorPayment, error)
	UpdatePaid(ctx context.Context, tx *sql.Tx, id uuid.UUID, paidAmount decimal.Decimal, status domain.DebtStatus) error
	ListByOperator(ctx context.Context, operatorID uuid.UUID, onlyOpen bool) ([]domain.OperatorPayment, error)
}

type movementRepo interface {
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerMovement, error)
	ExistsForPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID, types ...domain.MovementType) (bool, error)
	DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error)
}

type cashRepo interface {
	CreateIfAbsent(ctx context.Context, tx *sql.Tx, c *domain.CashMovement) (bool, error)
	DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.PaymentEvent) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
}

type taskRepo interface {
	Enqueue(ctx context.Context, task *domain.PostingTask) error
	DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error)
}

type operationRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Operation, error)
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error)
}

type rateResolver interface {
	Resolve(ctx context.Context, currency domain.Currency, asOf time.Time) (fx.Rate, error)
	ToBase(ctx context.Context, amount decimal.Decimal, currency domain.Currency, asOf time.Time, explicit *decimal.Decimal) (decimal.Decimal, fx.Rate, error)
}

type accountLocator interface {
	LocateOrCreate(ctx context.Context, tx *sql.Tx, code string, currency domain.Currency, name string) (accounts.Located, error)
	FundingAccount(ctx context.Context, tx *sql.Tx, method domain.PaymentMethod, currency domain.Currency, explicitID *uuid.UUID) (*domain.FinancialAccount, error)
}

type movementPoster interface {
	Post(ctx context.Context, tx *sql.Tx, in ledger.MovementInput) (*domain.LedgerMovement, error)
}

type Deps struct {
	DB         *sql.DB
	Payments   paymentRepo
	Debts      debtRepo
	Movements  movementRepo
	Cash       cashRepo
	Events     eventRepo
	Tasks      taskRepo
	Operations operationRepo
	Accounts   accountRepo
	Rates      rateResolver
	Locator    accountLocator
	Poster     movementPoster
	Locker     lock.Locker
	Notifier   notify.Notifier
}

type Service struct {
	db         *sql.DB
	payments   paymentRepo
	debts      debtRepo
	movements  movementRepo
	cash       cashRepo
	events     eventRepo
	tasks      taskRepo
	operations operationRepo
	accounts   accountRepo
	rates      rateResolver
	locator    accountLocator
	poster     movementPoster
	locker     lock.Locker
	notifier   notify.Notifier

	places   int32
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewService(d Deps, roundingPlaces int32) *Service {
	locker := d.Locker
	if locker == nil {
		locker = lock.NopLocker{}
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		db:         d.DB,
		payments:   d.Payments,
		debts:      d.Debts,
		movements:  d.Movements,
		cash:       d.Cash,
		events:     d.Events,
		tasks:      d.Tasks,
		operations: d.Operations,
		accounts:   d.Accounts,
		rates:      d.Rates,
		locator:    d.Locator,
		poster:     d.Poster,
		locker:     locker,
		notifier:   notifier,
		places:     roundingPlaces,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until in-flight notifications have been dispatched.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Actor identifies who triggered an operation. UserID is stamped on ledger
// movements as created_by.
type Actor struct {
	UserID *uuid.UUID
	Source string
}

func (a Actor) String() string {
	if a.UserID != nil {
		return fmt.Sprintf("user:%s", a.UserID)
	}
	if a.Source != "" {
		return a.Source
	}
	return "system"
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) writePaymentEvent(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID, eventType domain.PaymentEventType, actor Actor, payload any) error {
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		Actor:     actor.String(),
		CreatedAt: s.now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("writePaymentEvent: marshal: %w", err)
		}
		event.Payload = data
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writePaymentEvent: %w", err)
	}
	return nil
}
