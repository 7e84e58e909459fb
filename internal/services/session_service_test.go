package services

import (
	"testing"

	"github.com/ashish6318/skillbarter-sub001/internal/models"
)

var allStatuses = []string{
	models.SessionStatusPending,
	models.SessionStatusConfirmed,
	models.SessionStatusInProgress,
	models.SessionStatusCompleted,
	models.SessionStatusCancelled,
	models.SessionStatusNoShow,
	models.SessionStatusAbandoned,
}

func TestTransitionTableLegalEdges(t *testing.T) {
	legal := map[sessionEdge]creditEffect{
		{models.SessionStatusPending, models.SessionStatusConfirmed}:    effectDebitStudent,
		{models.SessionStatusPending, models.SessionStatusCancelled}:    effectNone,
		{models.SessionStatusPending, models.SessionStatusAbandoned}:    effectNone,
		{models.SessionStatusConfirmed, models.SessionStatusCancelled}:  effectRefundStudent,
		{models.SessionStatusConfirmed, models.SessionStatusInProgress}: effectNone,
		{models.SessionStatusConfirmed, models.SessionStatusCompleted}:  effectAwardTeacher,
		{models.SessionStatusConfirmed, models.SessionStatusNoShow}:     effectNone,
		{models.SessionStatusInProgress, models.SessionStatusCompleted}: effectAwardTeacher,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			rule, ok := lookupTransition(from, to)
			expectedEffect, expectLegal := legal[sessionEdge{From: from, To: to}]
			if ok != expectLegal {
				t.Errorf("transition %s -> %s: legal = %v, want %v", from, to, ok, expectLegal)
				continue
			}
			if ok && rule.Effect != expectedEffect {
				t.Errorf("transition %s -> %s: effect = %d, want %d", from, to, rule.Effect, expectedEffect)
			}
		}
	}
}

func TestTransitionTableRejectsSameStatus(t *testing.T) {
	for _, status := range allStatuses {
		if _, ok := lookupTransition(status, status); ok {
			t.Errorf("transition %s -> %s should be illegal", status, status)
		}
	}
}

func TestTransitionTableTerminalStatesHaveNoExits(t *testing.T) {
	terminal := []string{
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
		models.SessionStatusNoShow,
		models.SessionStatusAbandoned,
	}
	for _, from := range terminal {
		for _, to := range allStatuses {
			if _, ok := lookupTransition(from, to); ok {
				t.Errorf("terminal state %s has exit to %s", from, to)
			}
		}
	}
}

func TestAllowedActor(t *testing.T) {
	session := &models.Session{TeacherID: 1, StudentID: 2}

	tests := []struct {
		name    string
		from    string
		to      string
		actorID int64
		want    bool
	}{
		{"teacher confirms", models.SessionStatusPending, models.SessionStatusConfirmed, 1, true},
		{"student cannot confirm", models.SessionStatusPending, models.SessionStatusConfirmed, 2, false},
		{"stranger cannot confirm", models.SessionStatusPending, models.SessionStatusConfirmed, 3, false},
		{"student cancels pending", models.SessionStatusPending, models.SessionStatusCancelled, 2, true},
		{"teacher cancels pending", models.SessionStatusPending, models.SessionStatusCancelled, 1, true},
		{"stranger cannot cancel", models.SessionStatusPending, models.SessionStatusCancelled, 3, false},
		{"student cancels confirmed", models.SessionStatusConfirmed, models.SessionStatusCancelled, 2, true},
		{"teacher completes", models.SessionStatusConfirmed, models.SessionStatusCompleted, 1, true},
		{"student completes", models.SessionStatusConfirmed, models.SessionStatusCompleted, 2, true},
		{"system abandons pending", models.SessionStatusPending, models.SessionStatusAbandoned, SystemActor, true},
		{"teacher cannot abandon", models.SessionStatusPending, models.SessionStatusAbandoned, 1, false},
		{"student cannot abandon", models.SessionStatusPending, models.SessionStatusAbandoned, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := lookupTransition(tt.from, tt.to)
			if !ok {
				t.Fatalf("transition %s -> %s unexpectedly illegal", tt.from, tt.to)
			}
			if got := allowedActor(rule, session, tt.actorID); got != tt.want {
				t.Errorf("allowedActor(%s -> %s, actor %d) = %v, want %v",
					tt.from, tt.to, tt.actorID, got, tt.want)
			}
		})
	}
}
