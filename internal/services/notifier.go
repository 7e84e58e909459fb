package services

import "github.com/ashish6318/skillbarter-sub001/internal/models"

// Notifier receives fire-and-forget events after a state change has
// committed. Delivery failures never affect the committed change.
type Notifier interface {
	SessionStatusChanged(session *models.Session)
	BalanceChanged(userID int64, balance int64)
	SessionReminder(session *models.Session, kind string)
}
