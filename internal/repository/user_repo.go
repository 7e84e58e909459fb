package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, name, skills_offered, credits)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.SkillsOffered,
		user.Credits,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, skills_offered, credits, rating, total_reviews, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, name, skills_offered, credits, rating, total_reviews, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).
		Scan(&exists)
	return exists, err
}

func (r *UserRepository) OffersSkill(ctx context.Context, userID int64, skill string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM users, unnest(skills_offered) AS skill
			WHERE id = $1 AND lower(skill) = lower($2)
		)
	`
	var offers bool
	if err := r.db.QueryRow(ctx, query, userID, skill).Scan(&offers); err != nil {
		return false, err
	}
	return offers, nil
}

func (r *UserRepository) GetCredits(ctx context.Context, userID int64) (int64, error) {
	var credits int64
	err := r.db.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).
		Scan(&credits)
	return credits, err
}

// AdjustCredits applies a signed delta to the user's balance and returns the
// new balance. The update is conditional on the result staying non-negative,
// so a debit against an insufficient balance matches zero rows and surfaces
// as pgx.ErrNoRows without touching the row.
func (r *UserRepository) AdjustCredits(ctx context.Context, userID int64, delta int64) (int64, error) {
	query := `
		UPDATE users
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1 AND credits + $2 >= 0
		RETURNING credits
	`
	var credits int64
	if err := r.db.QueryRow(ctx, query, userID, delta).Scan(&credits); err != nil {
		return 0, err
	}
	return credits, nil
}

// ApplyRating folds one new rating into the teacher's running average in a
// single statement, rounded to one decimal place.
func (r *UserRepository) ApplyRating(ctx context.Context, userID int64, rating int) (float64, int, error) {
	query := `
		UPDATE users
		SET rating = ROUND(((COALESCE(rating, 0) * total_reviews + $2) / (total_reviews + 1))::numeric, 1),
			total_reviews = total_reviews + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING rating, total_reviews
	`
	var newRating float64
	var totalReviews int
	if err := r.db.QueryRow(ctx, query, userID, rating).Scan(&newRating, &totalReviews); err != nil {
		return 0, 0, err
	}
	return newRating, totalReviews, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.SkillsOffered,
		&user.Credits,
		&user.Rating,
		&user.TotalReviews,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
