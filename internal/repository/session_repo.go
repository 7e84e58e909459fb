package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
)

const sessionColumns = `id, teacher_id, student_id, skill, scheduled_at, duration_min, status,
	message, cancellation_reason, completed_at, rating, review, reminders_sent, created_at, updated_at`

type CreateSessionInput struct {
	TeacherID       int64
	StudentID       int64
	Skill           string
	ScheduledAt     time.Time
	DurationMinutes int
	Message         *string
}

type SessionListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		INSERT INTO sessions (teacher_id, student_id, skill, scheduled_at, duration_min, status, message)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING %s
	`, sessionColumns)

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.TeacherID,
		input.StudentID,
		input.Skill,
		input.ScheduledAt,
		input.DurationMinutes,
		input.Message,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1 FOR UPDATE`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	args := []any{filter.ActorID}
	var whereParts []string
	switch filter.Role {
	case "teacher":
		whereParts = append(whereParts, "teacher_id = $1")
	case "student":
		whereParts = append(whereParts, "student_id = $1")
	default:
		whereParts = append(whereParts, "(teacher_id = $1 OR student_id = $1)")
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY scheduled_at ASC, id ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// UpdateStatusIfCurrent flips the status only when the stored status still
// matches what the caller read. A replayed or raced transition matches zero
// rows and comes back as pgx.ErrNoRows.
func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	nextStatus string,
	reason *string,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET status = $3,
			cancellation_reason = COALESCE($4, cancellation_reason),
			completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus, reason))
}

// SetRatingIfUnrated attaches the one allowed rating; a second attempt
// matches zero rows.
func (r *SessionRepository) SetRatingIfUnrated(
	ctx context.Context,
	sessionID int64,
	rating int,
	review *string,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET rating = $2, review = $3, updated_at = NOW()
		WHERE id = $1 AND rating IS NULL
		RETURNING %s
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID, rating, review))
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DueForReminder returns confirmed sessions starting within the window that
// have not yet been sent the given reminder kind.
func (r *SessionRepository) DueForReminder(
	ctx context.Context,
	kind string,
	window time.Duration,
) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE status = 'confirmed'
		  AND scheduled_at > NOW()
		  AND scheduled_at <= NOW() + ($2 * INTERVAL '1 minute')
		  AND NOT ($1 = ANY(reminders_sent))
		ORDER BY scheduled_at ASC
	`, sessionColumns)

	rows, err := r.db.Query(ctx, query, kind, int(window.Minutes()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) AppendReminder(ctx context.Context, sessionID int64, kind string) error {
	query := `
		UPDATE sessions
		SET reminders_sent = array_append(reminders_sent, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(reminders_sent))
	`
	_, err := r.db.Exec(ctx, query, sessionID, kind)
	return err
}

// ListStalePending returns pending sessions whose scheduled time has already
// passed; the reminder worker sweeps these to abandoned.
func (r *SessionRepository) ListStalePending(ctx context.Context) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE status = 'pending' AND scheduled_at <= NOW()
		ORDER BY scheduled_at ASC
	`, sessionColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) HasConflict(
	ctx context.Context,
	teacherID int64,
	requestedTime time.Time,
	durationMinutes int,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM sessions
			WHERE teacher_id = $1
			  AND status IN ('pending', 'confirmed', 'in_progress')
			  AND scheduled_at < ($2::timestamptz + ($3::int * INTERVAL '1 minute'))
			  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) > $2::timestamptz
		)
	`
	var hasConflict bool
	if err := r.db.QueryRow(ctx, query, teacherID, requestedTime, durationMinutes).Scan(&hasConflict); err != nil {
		return false, err
	}
	return hasConflict, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.TeacherID,
		&session.StudentID,
		&session.Skill,
		&session.ScheduledAt,
		&session.DurationMinutes,
		&session.Status,
		&session.Message,
		&session.CancellationReason,
		&session.CompletedAt,
		&session.Rating,
		&session.Review,
		&session.RemindersSent,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
