package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
)

const transactionColumns = `id, reference, user_id, type, amount, balance_after,
	related_session_id, related_user_id, description, category, status, created_at`

type CreateTransactionInput struct {
	UserID           int64
	Type             string
	Amount           int64
	BalanceAfter     int64
	RelatedSessionID *int64
	RelatedUserID    *int64
	Description      string
}

type TransactionListFilter struct {
	Type   string
	Status string
	Page   int
	Limit  int
}

type TransactionStats struct {
	Earned        int64 `json:"earned"`
	Spent         int64 `json:"spent"`
	TransferCount int   `json:"transfer_count"`
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends one ledger row. The log is append-only: no update or delete
// methods exist on this repository.
func (r *TransactionRepository) Create(
	ctx context.Context,
	input CreateTransactionInput,
) (*models.CreditTransaction, error) {
	query := fmt.Sprintf(`
		INSERT INTO credit_transactions
			(reference, user_id, type, amount, balance_after, related_session_id, related_user_id, description, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, transactionColumns)

	return scanTransaction(r.db.QueryRow(
		ctx,
		query,
		uuid.NewString(),
		input.UserID,
		input.Type,
		input.Amount,
		input.BalanceAfter,
		input.RelatedSessionID,
		input.RelatedUserID,
		input.Description,
		models.TxCategoryForType(input.Type),
		models.TxStatusCompleted,
	))
}

// ListByUser returns transactions involving the user as owner or counterparty,
// newest first, with the total count for pagination.
func (r *TransactionRepository) ListByUser(
	ctx context.Context,
	userID int64,
	filter TransactionListFilter,
) ([]models.CreditTransaction, int, error) {
	args := []any{userID}
	whereParts := []string{"(user_id = $1 OR related_user_id = $1)"}

	if txType := strings.TrimSpace(filter.Type); txType != "" {
		args = append(args, txType)
		whereParts = append(whereParts, fmt.Sprintf("type = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(whereParts, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM credit_transactions WHERE %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, transactionColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := make([]models.CreditTransaction, 0)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

func (r *TransactionRepository) StatsByUser(
	ctx context.Context,
	userID int64,
	since time.Time,
) (*TransactionStats, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
			COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0),
			COUNT(*) FILTER (WHERE type = 'credit_transfer')
		FROM credit_transactions
		WHERE user_id = $1 AND created_at >= $2
	`
	var stats TransactionStats
	err := r.db.QueryRow(ctx, query, userID, since).
		Scan(&stats.Earned, &stats.Spent, &stats.TransferCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanTransaction(row pgx.Row) (*models.CreditTransaction, error) {
	var transaction models.CreditTransaction
	err := row.Scan(
		&transaction.ID,
		&transaction.Reference,
		&transaction.UserID,
		&transaction.Type,
		&transaction.Amount,
		&transaction.BalanceAfter,
		&transaction.RelatedSessionID,
		&transaction.RelatedUserID,
		&transaction.Description,
		&transaction.Category,
		&transaction.Status,
		&transaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}
