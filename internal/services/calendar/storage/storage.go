// Package storage defines persistence contracts for calendar service state.
package storage

import (
	"context"
	"errors"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventQuery bounds an event listing. Where is an optional SQL condition over
// the event columns; Limit caps the result, zero meaning no cap.
type EventQuery struct {
	Where  string
	Params []any
	Limit  int
}

// EventStore persists calendar events.
type EventStore interface {
	PutEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, query EventQuery) ([]domain.Event, error)
}

// UserStore persists user accounts.
type UserStore interface {
	PutUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// SignupStore persists event signups.
type SignupStore interface {
	PutSignup(ctx context.Context, signup domain.UserEventSignup) error
	GetSignup(ctx context.Context, eventID, userID string) (domain.UserEventSignup, error)
	DeleteSignup(ctx context.Context, eventID, userID string) error
	DeleteSignupsForEvent(ctx context.Context, eventID string) error
	ListSignupsForEvent(ctx context.Context, eventID string) ([]domain.UserEventSignup, error)
	ListSignupsForUser(ctx context.Context, userID string) ([]domain.UserEventSignup, error)
}

// RelationStore persists user relations. Pairs are stored normalized with
// UserAID < UserBID.
type RelationStore interface {
	PutRelation(ctx context.Context, relation domain.UserRelation) error
	GetRelation(ctx context.Context, userAID, userBID string) (domain.UserRelation, error)
	DeleteRelation(ctx context.Context, userAID, userBID string) error
	ListRelationsForUser(ctx context.Context, userID string) ([]domain.UserRelation, error)
}

// StatisticsStore persists per-user statistics.
type StatisticsStore interface {
	PutStatistics(ctx context.Context, stats domain.UserStatistics) error
	GetStatistics(ctx context.Context, userID string) (domain.UserStatistics, error)
}

// Store aggregates the calendar persistence contracts.
type Store interface {
	EventStore
	UserStore
	SignupStore
	RelationStore
	StatisticsStore
}
