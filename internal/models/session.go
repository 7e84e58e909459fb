package models

import "time"

const (
	SessionStatusPending    = "pending"
	SessionStatusConfirmed  = "confirmed"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusCancelled  = "cancelled"
	SessionStatusNoShow     = "no_show"
	SessionStatusAbandoned  = "abandoned"
)

type Session struct {
	ID                 int64      `json:"id"`
	TeacherID          int64      `json:"teacher_id"`
	StudentID          int64      `json:"student_id"`
	Skill              string     `json:"skill"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	Message            *string    `json:"message"`
	CancellationReason *string    `json:"cancellation_reason"`
	CompletedAt        *time.Time `json:"completed_at"`
	Rating             *int       `json:"rating"`
	Review             *string    `json:"review"`
	RemindersSent      []string   `json:"reminders_sent"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CreditCost is the number of credits one session is worth: one credit per
// started hour.
func (s *Session) CreditCost() int64 {
	return SessionCreditCost(s.DurationMinutes)
}

func SessionCreditCost(durationMinutes int) int64 {
	return int64((durationMinutes + 59) / 60)
}

func (s *Session) IsParticipant(userID int64) bool {
	return s.TeacherID == userID || s.StudentID == userID
}

func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusNoShow, SessionStatusAbandoned:
		return true
	}
	return false
}
