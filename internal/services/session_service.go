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
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTeacherNotFound   = errors.New("teacher not found")
	ErrSkillNotOffered   = errors.New("teacher does not offer this skill")
	ErrPastSchedule      = errors.New("scheduled time must be in the future")
	ErrAlreadyRated      = errors.New("session already rated")
)

// InvalidTransitionError reports the session's actual status so a stale
// client can resynchronize its view.
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move session from %q to %q", e.Current, e.Requested)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// SystemActor is the caller identity used by background sweeps such as the
// abandoned-session reaper.
const SystemActor int64 = 0

const (
	actorTeacher     = "teacher"
	actorStudent     = "student"
	actorParticipant = "participant"
	actorSystem      = "system"
)

type creditEffect int

const (
	effectNone creditEffect = iota
	effectDebitStudent
	effectRefundStudent
	effectAwardTeacher
)

type sessionEdge struct {
	From string
	To   string
}

type transitionRule struct {
	Actor  string
	Effect creditEffect
}

// sessionTransitions is the complete set of legal status edges. Anything not
// listed here is rejected, including a transition to the current status.
// no_show deliberately carries no credit effect: the student forfeits the
// debit made at confirmation and the teacher is not paid.
var sessionTransitions = map[sessionEdge]transitionRule{
	{models.SessionStatusPending, models.SessionStatusConfirmed}:    {actorTeacher, effectDebitStudent},
	{models.SessionStatusPending, models.SessionStatusCancelled}:    {actorParticipant, effectNone},
	{models.SessionStatusPending, models.SessionStatusAbandoned}:    {actorSystem, effectNone},
	{models.SessionStatusConfirmed, models.SessionStatusCancelled}:  {actorParticipant, effectRefundStudent},
	{models.SessionStatusConfirmed, models.SessionStatusInProgress}: {actorParticipant, effectNone},
	{models.SessionStatusConfirmed, models.SessionStatusCompleted}:  {actorParticipant, effectAwardTeacher},
	{models.SessionStatusConfirmed, models.SessionStatusNoShow}:     {actorParticipant, effectNone},
	{models.SessionStatusInProgress, models.SessionStatusCompleted}: {actorParticipant, effectAwardTeacher},
}

func lookupTransition(from, to string) (transitionRule, bool) {
	rule, ok := sessionTransitions[sessionEdge{From: from, To: to}]
	return rule, ok
}

func allowedActor(rule transitionRule, session *models.Session, actorID int64) bool {
	switch rule.Actor {
	case actorTeacher:
		return actorID == session.TeacherID
	case actorStudent:
		return actorID == session.StudentID
	case actorParticipant:
		return session.IsParticipant(actorID)
	case actorSystem:
		return actorID == SystemActor
	default:
		return false
	}
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	OffersSkill(ctx context.Context, userID int64, skill string) (bool, error)
}

// SessionService owns the session lifecycle. Credit side effects run through
// the ledger inside the same database transaction as the status flip, so the
// two can never diverge.
type SessionService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	userRepo    userReader
	ledger      *LedgerService
	notifier    Notifier
}

func NewSessionService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	userRepo userReader,
	ledger *LedgerService,
	notifier Notifier,
) *SessionService {
	return &SessionService{
		db:          db,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		ledger:      ledger,
		notifier:    notifier,
	}
}

type CreateSessionInput struct {
	TeacherID       int64
	Skill           string
	ScheduledAt     time.Time
	DurationMinutes int
	Message         *string
}

func (s *SessionService) Create(
	ctx context.Context,
	studentID int64,
	input CreateSessionInput,
) (*models.Session, error) {
	if input.TeacherID <= 0 || input.DurationMinutes <= 0 || input.Skill == "" {
		return nil, ErrInvalidInput
	}
	if input.TeacherID == studentID {
		return nil, ErrInvalidInput
	}
	if !input.ScheduledAt.After(time.Now()) {
		return nil, ErrPastSchedule
	}

	teacher, err := s.userRepo.GetByID(ctx, input.TeacherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeacherNotFound
		}
		return nil, err
	}

	offers, err := s.userRepo.OffersSkill(ctx, teacher.ID, input.Skill)
	if err != nil {
		return nil, err
	}
	if !offers {
		return nil, ErrSkillNotOffered
	}

	// Advisory pre-check only: the balance may drift before confirmation,
	// where the authoritative check runs again.
	cost := models.SessionCreditCost(input.DurationMinutes)
	student, err := s.userRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Credits < cost {
		return nil, &InsufficientCreditsError{Required: cost, Available: student.Credits}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", input.TeacherID); err != nil {
		return nil, err
	}

	hasConflict, err := txSessionRepo.HasConflict(
		ctx,
		input.TeacherID,
		input.ScheduledAt.UTC(),
		input.DurationMinutes,
	)
	if err != nil {
		return nil, err
	}
	if hasConflict {
		return nil, ErrConflict
	}

	session, err := txSessionRepo.Create(ctx, repository.CreateSessionInput{
		TeacherID:       input.TeacherID,
		StudentID:       studentID,
		Skill:           input.Skill,
		ScheduledAt:     input.ScheduledAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		Message:         input.Message,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

// Transition moves a session along one edge of the status table. The credit
// effect and the status flip share one transaction: if either fails the
// session stays in its prior state and no balance moves.
func (s *SessionService) Transition(
	ctx context.Context,
	sessionID int64,
	targetStatus string,
	actorID int64,
	reason *string,
) (*models.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rule, ok := lookupTransition(session.Status, targetStatus)
	if !ok {
		return nil, &InvalidTransitionError{Current: session.Status, Requested: targetStatus}
	}
	if !allowedActor(rule, session, actorID) {
		return nil, ErrForbidden
	}

	transaction, err := s.applyCreditEffect(ctx, tx, rule.Effect, session)
	if err != nil {
		return nil, err
	}

	updated, err := txSessionRepo.UpdateStatusIfCurrent(ctx, sessionID, session.Status, targetStatus, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &InvalidTransitionError{Current: session.Status, Requested: targetStatus}
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifySession(updated)
	if transaction != nil {
		s.notifyBalance(transaction.UserID, transaction.BalanceAfter)
	}
	return updated, nil
}

func (s *SessionService) applyCreditEffect(
	ctx context.Context,
	tx pgx.Tx,
	effect creditEffect,
	session *models.Session,
) (*models.CreditTransaction, error) {
	cost := session.CreditCost()
	switch effect {
	case effectNone:
		return nil, nil
	case effectDebitStudent:
		description := fmt.Sprintf("Booked %s session", session.Skill)
		return s.ledger.applyDelta(ctx, tx, session.StudentID, -cost,
			models.TxTypeSessionBooking, description, &session.ID, &session.TeacherID)
	case effectRefundStudent:
		description := fmt.Sprintf("Refund for cancelled %s session", session.Skill)
		return s.ledger.applyDelta(ctx, tx, session.StudentID, cost,
			models.TxTypeSessionCancellation, description, &session.ID, &session.TeacherID)
	case effectAwardTeacher:
		description := fmt.Sprintf("Earnings for completed %s session", session.Skill)
		return s.ledger.applyDelta(ctx, tx, session.TeacherID, cost,
			models.TxTypeSessionCompletion, description, &session.ID, &session.StudentID)
	default:
		return nil, fmt.Errorf("unknown credit effect %d", effect)
	}
}

// Rate attaches the student's one allowed rating to a completed session and
// folds it into the teacher's running average atomically.
func (s *SessionService) Rate(
	ctx context.Context,
	sessionID int64,
	actorID int64,
	rating int,
	review *string,
) (*models.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txUserRepo := repository.NewUserRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != session.StudentID {
		return nil, ErrForbidden
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, &InvalidTransitionError{Current: session.Status, Requested: "rate"}
	}
	if session.Rating != nil {
		return nil, ErrAlreadyRated
	}

	updated, err := txSessionRepo.SetRatingIfUnrated(ctx, sessionID, rating, review)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyRated
		}
		return nil, err
	}

	if _, _, err := txUserRepo.ApplyRating(ctx, session.TeacherID, rating); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete hard-deletes a session at a participant's request. Completed
// sessions are history and cannot be deleted. Deleting a session the student
// already paid for refunds them in the same transaction.
func (s *SessionService) Delete(ctx context.Context, sessionID int64, actorID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsParticipant(actorID) {
		return ErrForbidden
	}
	if session.Status == models.SessionStatusCompleted {
		return &InvalidTransitionError{Current: session.Status, Requested: "delete"}
	}

	var transaction *models.CreditTransaction
	if session.Status == models.SessionStatusConfirmed || session.Status == models.SessionStatusInProgress {
		transaction, err = s.applyCreditEffect(ctx, tx, effectRefundStudent, session)
		if err != nil {
			return err
		}
	}

	if err := txSessionRepo.Delete(ctx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if transaction != nil {
		s.notifyBalance(transaction.UserID, transaction.BalanceAfter)
	}
	return nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID int64,
	sessionID int64,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return session, nil
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID int64,
	filter repository.SessionListFilter,
) ([]models.Session, error) {
	filter.ActorID = actorID
	return s.sessionRepo.List(ctx, filter)
}

func (s *SessionService) notifySession(session *models.Session) {
	if s.notifier != nil {
		s.notifier.SessionStatusChanged(session)
	}
}

func (s *SessionService) notifyBalance(userID int64, balance int64) {
	if s.notifier != nil {
		s.notifier.BalanceChanged(userID, balance)
	}
}
