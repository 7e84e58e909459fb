package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
	"github.com/ashish6318/skillbarter-sub001/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestSessionConfirmCancelRefundFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "go")
	studentID := createTestUser(t, ctx, pool, 2)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "go",
		ScheduledAt:     time.Now().Add(48 * time.Hour),
		DurationMinutes: 90,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != models.SessionStatusPending {
		t.Fatalf("expected pending session, got %q", created.Status)
	}
	if got := userCredits(t, ctx, pool, studentID); got != 2 {
		t.Fatalf("creation must not charge, balance = %d", got)
	}

	confirmed, err := sessions.Transition(ctx, created.ID, models.SessionStatusConfirmed, teacherID, nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != models.SessionStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", confirmed.Status)
	}
	if got := userCredits(t, ctx, pool, studentID); got != 0 {
		t.Fatalf("expected balance 0 after confirm, got %d", got)
	}
	if n := countTransactions(t, ctx, pool, studentID, models.TxTypeSessionBooking); n != 1 {
		t.Fatalf("expected 1 booking transaction, got %d", n)
	}

	cancelled, err := sessions.Transition(ctx, created.ID, models.SessionStatusCancelled, studentID, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}
	if got := userCredits(t, ctx, pool, studentID); got != 2 {
		t.Fatalf("expected full refund to 2, got %d", got)
	}
	if n := countTransactions(t, ctx, pool, studentID, models.TxTypeSessionCancellation); n != 1 {
		t.Fatalf("expected 1 cancellation transaction, got %d", n)
	}
	if amount := transactionAmount(t, ctx, pool, studentID, models.TxTypeSessionCancellation); amount != 2 {
		t.Fatalf("expected refund amount +2, got %d", amount)
	}

	// Second cancellation is an idempotent rejection, not a double refund.
	_, err = sessions.Transition(ctx, created.ID, models.SessionStatusCancelled, studentID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat cancel, got %v", err)
	}
	if got := userCredits(t, ctx, pool, studentID); got != 2 {
		t.Fatalf("repeat cancel must not refund again, balance = %d", got)
	}
}

func TestSessionCreateRejectsShortBalance(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "piano")
	studentID := createTestUser(t, ctx, pool, 1)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	_, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "piano",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 120,
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %T", err)
	}
	if insufficient.Required != 2 || insufficient.Available != 1 {
		t.Fatalf("expected required=2 available=1, got %+v", insufficient)
	}

	var count int
	err = pool.QueryRow(ctx, "SELECT COUNT(*) FROM sessions WHERE student_id = $1", studentID).Scan(&count)
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no session record, got %d", count)
	}
}

func TestSessionPendingToCompletedRejected(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "chess")
	studentID := createTestUser(t, ctx, pool, 5)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "chess",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = sessions.Transition(ctx, created.ID, models.SessionStatusCompleted, teacherID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if got := userCredits(t, ctx, pool, studentID); got != 5 {
		t.Fatalf("rejected transition must not move credits, balance = %d", got)
	}
	if got := userCredits(t, ctx, pool, teacherID); got != 0 {
		t.Fatalf("rejected transition must not award teacher, balance = %d", got)
	}
}

func TestSessionCompletionAwardsTeacher(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "spanish")
	studentID := createTestUser(t, ctx, pool, 3)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "spanish",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 90,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sessions.Transition(ctx, created.ID, models.SessionStatusConfirmed, teacherID, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := sessions.Transition(ctx, created.ID, models.SessionStatusInProgress, studentID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	completed, err := sessions.Transition(ctx, created.ID, models.SessionStatusCompleted, teacherID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	if got := userCredits(t, ctx, pool, teacherID); got != 2 {
		t.Fatalf("expected teacher awarded 2 credits, got %d", got)
	}
	if n := countTransactions(t, ctx, pool, teacherID, models.TxTypeSessionCompletion); n != 1 {
		t.Fatalf("expected 1 completion transaction, got %d", n)
	}
}

func TestSessionRatingOnceAndAverage(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "drawing")
	firstStudentID := createTestUser(t, ctx, pool, 4)
	secondStudentID := createTestUser(t, ctx, pool, 4)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, firstStudentID, secondStudentID) })

	first := completeSession(t, ctx, sessions, teacherID, firstStudentID, "drawing", 24*time.Hour)
	second := completeSession(t, ctx, sessions, teacherID, secondStudentID, "drawing", 72*time.Hour)

	if _, err := sessions.Rate(ctx, first.ID, firstStudentID, 4, nil); err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if _, err := sessions.Rate(ctx, second.ID, secondStudentID, 5, nil); err != nil {
		t.Fatalf("second rating: %v", err)
	}

	var rating float64
	var totalReviews int
	err := pool.QueryRow(ctx, "SELECT rating, total_reviews FROM users WHERE id = $1", teacherID).
		Scan(&rating, &totalReviews)
	if err != nil {
		t.Fatalf("read teacher aggregate: %v", err)
	}
	if rating != 4.5 || totalReviews != 2 {
		t.Fatalf("expected rating 4.5 over 2 reviews, got %.1f over %d", rating, totalReviews)
	}

	_, err = sessions.Rate(ctx, first.ID, firstStudentID, 5, nil)
	if !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
}

func TestSessionConcurrentConfirmationChargesOnce(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "go")
	studentID := createTestUser(t, ctx, pool, 10)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "go",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.Transition(ctx, created.ID, models.SessionStatusConfirmed, teacherID, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidTransition):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || rejections != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", successes, rejections)
	}

	if got := userCredits(t, ctx, pool, studentID); got != 9 {
		t.Fatalf("expected student charged exactly once (balance 9), got %d", got)
	}
	if n := countTransactions(t, ctx, pool, studentID, models.TxTypeSessionBooking); n != 1 {
		t.Fatalf("expected exactly 1 booking transaction, got %d", n)
	}
}

func TestSessionDeleteRefundsConfirmed(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, sessions := newIntegrationServices(pool)

	teacherID := createTestUser(t, ctx, pool, 0, "yoga")
	studentID := createTestUser(t, ctx, pool, 2)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, teacherID, studentID) })

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           "yoga",
		ScheduledAt:     time.Now().Add(24 * time.Hour),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sessions.Transition(ctx, created.ID, models.SessionStatusConfirmed, teacherID, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := sessions.Delete(ctx, created.ID, studentID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := userCredits(t, ctx, pool, studentID); got != 2 {
		t.Fatalf("expected refund on delete, balance = %d", got)
	}

	_, err = sessions.GetSession(ctx, studentID, created.ID)
	if err == nil {
		t.Fatal("expected session to be gone")
	}
}

func completeSession(
	t *testing.T,
	ctx context.Context,
	sessions *SessionService,
	teacherID, studentID int64,
	skill string,
	offset time.Duration,
) *models.Session {
	t.Helper()

	created, err := sessions.Create(ctx, studentID, CreateSessionInput{
		TeacherID:       teacherID,
		Skill:           skill,
		ScheduledAt:     time.Now().Add(offset),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sessions.Transition(ctx, created.ID, models.SessionStatusConfirmed, teacherID, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	completed, err := sessions.Transition(ctx, created.ID, models.SessionStatusCompleted, teacherID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return completed
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationServices(pool *pgxpool.Pool) (*LedgerService, *SessionService) {
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool)

	ledger := NewLedgerService(pool, userRepo, transactionRepo, nil)
	sessions := NewSessionService(pool, sessionRepo, userRepo, ledger, nil)
	return ledger, sessions
}

func createTestUser(
	t *testing.T,
	ctx context.Context,
	pool *pgxpool.Pool,
	credits int64,
	skills ...string,
) int64 {
	t.Helper()

	if skills == nil {
		skills = []string{}
	}
	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:         fmt.Sprintf("core-test-%d@example.com", time.Now().UnixNano()),
		PasswordHash:  "test-hash",
		Name:          "Test User",
		SkillsOffered: skills,
		Credits:       credits,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM credit_transactions WHERE user_id = ANY($1) OR related_user_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup credit transactions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM sessions WHERE teacher_id = ANY($1) OR student_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup sessions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}

func userCredits(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID int64) int64 {
	t.Helper()

	var credits int64
	if err := pool.QueryRow(ctx, "SELECT credits FROM users WHERE id = $1", userID).Scan(&credits); err != nil {
		t.Fatalf("read credits: %v", err)
	}
	return credits
}

func countTransactions(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID int64, txType string) int {
	t.Helper()

	var count int
	err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM credit_transactions WHERE user_id = $1 AND type = $2",
		userID, txType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

func transactionAmount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID int64, txType string) int64 {
	t.Helper()

	var amount int64
	err := pool.QueryRow(ctx,
		"SELECT amount FROM credit_transactions WHERE user_id = $1 AND type = $2 ORDER BY id DESC LIMIT 1",
		userID, txType,
	).Scan(&amount)
	if err != nil {
		t.Fatalf("read transaction amount: %v", err)
	}
	return amount
}
