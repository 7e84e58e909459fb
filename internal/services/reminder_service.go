package services

import (
	"context"
	"log"
	"time"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
	"github.com/ashish6318/skillbarter-sub001/internal/repository"
)

const Reminder24h = "24h"

// ReminderService periodically marks confirmed sessions that start inside
// the reminder window and sweeps stale pending sessions to abandoned. The
// reminder append never touches the status state machine.
type ReminderService struct {
	sessionRepo *repository.SessionRepository
	sessions    *SessionService
	notifier    Notifier
	interval    time.Duration
	window      time.Duration
}

func NewReminderService(
	sessionRepo *repository.SessionRepository,
	sessions *SessionService,
	notifier Notifier,
	interval time.Duration,
	window time.Duration,
) *ReminderService {
	return &ReminderService{
		sessionRepo: sessionRepo,
		sessions:    sessions,
		notifier:    notifier,
		interval:    interval,
		window:      window,
	}
}

func (s *ReminderService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *ReminderService) Sweep(ctx context.Context) {
	if err := s.sendDueReminders(ctx); err != nil {
		log.Printf("reminder sweep: %v", err)
	}
	if err := s.abandonStalePending(ctx); err != nil {
		log.Printf("abandon sweep: %v", err)
	}
}

func (s *ReminderService) sendDueReminders(ctx context.Context) error {
	due, err := s.sessionRepo.DueForReminder(ctx, Reminder24h, s.window)
	if err != nil {
		return err
	}

	for _, session := range due {
		if err := s.sessionRepo.AppendReminder(ctx, session.ID, Reminder24h); err != nil {
			log.Printf("append reminder for session %d: %v", session.ID, err)
			continue
		}
		if s.notifier != nil {
			sessionCopy := session
			s.notifier.SessionReminder(&sessionCopy, Reminder24h)
		}
	}
	return nil
}

func (s *ReminderService) abandonStalePending(ctx context.Context) error {
	stale, err := s.sessionRepo.ListStalePending(ctx)
	if err != nil {
		return err
	}

	for _, session := range stale {
		if _, err := s.sessions.Transition(ctx, session.ID, models.SessionStatusAbandoned, SystemActor, nil); err != nil {
			log.Printf("abandon session %d: %v", session.ID, err)
		}
	}
	return nil
}
