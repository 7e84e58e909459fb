package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
	"github.com/ashish6318/skillbarter-sub001/internal/repository"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPeriod       = errors.New("invalid stats period")
	ErrSelfTransfer        = errors.New("cannot transfer credits to yourself")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// InsufficientCreditsError is the expected business rejection of a debit.
// It carries the shortfall context so the caller can tell the user how many
// credits the operation needed versus what they have.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

type TransferResult struct {
	FromBalance int64 `json:"from_balance"`
	ToBalance   int64 `json:"to_balance"`
}

type CreditStats struct {
	Period         string `json:"period"`
	CurrentBalance int64  `json:"current_balance"`
	Earned         int64  `json:"earned"`
	Spent          int64  `json:"spent"`
	TransferCount  int    `json:"transfer_count"`
}

// LedgerService owns the per-user credit balance and the append-only
// transaction log. Every balance change commits together with exactly one
// log row; a rejected change writes nothing.
type LedgerService struct {
	db       *pgxpool.Pool
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
	notifier Notifier
}

func NewLedgerService(
	db *pgxpool.Pool,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	notifier Notifier,
) *LedgerService {
	return &LedgerService{
		db:       db,
		userRepo: userRepo,
		txRepo:   txRepo,
		notifier: notifier,
	}
}

// ApplyDelta moves credits for a single user and records the movement. A
// debit that would take the balance negative fails with
// InsufficientCreditsError before anything is written.
func (s *LedgerService) ApplyDelta(
	ctx context.Context,
	userID int64,
	amount int64,
	txType string,
	description string,
	relatedSessionID *int64,
	relatedUserID *int64,
) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	transaction, err := s.applyDelta(ctx, tx, userID, amount, txType, description, relatedSessionID, relatedUserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifyBalance(userID, transaction.BalanceAfter)
	return transaction, nil
}

// applyDelta is the shared core: conditional balance update plus log append
// on whatever transaction scope the caller holds.
func (s *LedgerService) applyDelta(
	ctx context.Context,
	db repository.DBTX,
	userID int64,
	amount int64,
	txType string,
	description string,
	relatedSessionID *int64,
	relatedUserID *int64,
) (*models.CreditTransaction, error) {
	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	newBalance, err := userRepo.AdjustCredits(ctx, userID, amount)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Zero rows: either the user is missing or the debit would go
		// negative. Disambiguate without mutating anything.
		available, lookupErr := userRepo.GetCredits(ctx, userID)
		if lookupErr != nil {
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return nil, ErrUserNotFound
			}
			return nil, lookupErr
		}
		return nil, &InsufficientCreditsError{Required: -amount, Available: available}
	}

	return txRepo.Create(ctx, repository.CreateTransactionInput{
		UserID:           userID,
		Type:             txType,
		Amount:           amount,
		BalanceAfter:     newBalance,
		RelatedSessionID: relatedSessionID,
		RelatedUserID:    relatedUserID,
		Description:      description,
	})
}

// Transfer moves credits between two users. Both legs commit together or
// neither does.
func (s *LedgerService) Transfer(
	ctx context.Context,
	fromUserID int64,
	toUserID int64,
	amount int64,
	description string,
) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromUserID == toUserID {
		return nil, ErrSelfTransfer
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txUserRepo := repository.NewUserRepository(tx)
	exists, err := txUserRepo.Exists(ctx, toUserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}

	if description == "" {
		description = "Credit transfer"
	}

	// Touch the two user rows in id order so concurrent opposite-direction
	// transfers cannot deadlock.
	var debit, credit *models.CreditTransaction
	if fromUserID < toUserID {
		if debit, err = s.applyDelta(ctx, tx, fromUserID, -amount, models.TxTypeCreditTransfer, description, nil, &toUserID); err != nil {
			return nil, err
		}
		if credit, err = s.applyDelta(ctx, tx, toUserID, amount, models.TxTypeCreditTransfer, description, nil, &fromUserID); err != nil {
			return nil, err
		}
	} else {
		if credit, err = s.applyDelta(ctx, tx, toUserID, amount, models.TxTypeCreditTransfer, description, nil, &fromUserID); err != nil {
			return nil, err
		}
		if debit, err = s.applyDelta(ctx, tx, fromUserID, -amount, models.TxTypeCreditTransfer, description, nil, &toUserID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifyBalance(fromUserID, debit.BalanceAfter)
	s.notifyBalance(toUserID, credit.BalanceAfter)

	return &TransferResult{
		FromBalance: debit.BalanceAfter,
		ToBalance:   credit.BalanceAfter,
	}, nil
}

// Purchase is a trusted credit grant; no payment gateway is integrated.
func (s *LedgerService) Purchase(
	ctx context.Context,
	userID int64,
	amount int64,
	paymentMethod string,
) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	description := fmt.Sprintf("Purchased %d credits via %s", amount, paymentMethod)
	return s.ApplyDelta(ctx, userID, amount, models.TxTypeCreditPurchase, description, nil, nil)
}

func (s *LedgerService) History(
	ctx context.Context,
	userID int64,
	filter repository.TransactionListFilter,
) ([]models.CreditTransaction, int, error) {
	return s.txRepo.ListByUser(ctx, userID, filter)
}

func (s *LedgerService) Stats(
	ctx context.Context,
	userID int64,
	period string,
) (*CreditStats, error) {
	var days int
	switch period {
	case "", "30d":
		period, days = "30d", 30
	case "7d":
		days = 7
	case "90d":
		days = 90
	default:
		return nil, ErrInvalidPeriod
	}

	balance, err := s.userRepo.GetCredits(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := s.txRepo.StatsByUser(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	return &CreditStats{
		Period:         period,
		CurrentBalance: balance,
		Earned:         stats.Earned,
		Spent:          stats.Spent,
		TransferCount:  stats.TransferCount,
	}, nil
}

func (s *LedgerService) notifyBalance(userID int64, balance int64) {
	if s.notifier != nil {
		s.notifier.BalanceChanged(userID, balance)
	}
}
