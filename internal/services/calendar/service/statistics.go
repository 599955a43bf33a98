package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// RecomputeStatistics rebuilds one user's counters from current state,
// persists them, and announces the new totals. Done after every mutation
// that can move a counter.
func (s *Service) RecomputeStatistics(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	friendIDs, err := s.graph.MutualFriendsOf(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup friends: %w", err)
	}

	created, err := s.store.ListEvents(ctx, storage.EventQuery{
		Where:  "created_by_user_id = ?",
		Params: []any{userID},
	})
	if err != nil {
		return fmt.Errorf("list created events: %w", err)
	}

	signups, err := s.store.ListSignupsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list signups: %w", err)
	}
	now := s.now()
	upcoming := 0
	for _, signup := range signups {
		if signup.Status != domain.SignupApproved && signup.Status != domain.SignupAcceptedInvitation {
			continue
		}
		event, err := s.store.GetEvent(ctx, signup.EventID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load signed-up event: %w", err)
		}
		if event.EndsAt.After(now) {
			upcoming++
		}
	}

	stats := domain.UserStatistics{
		UserID:                  userID,
		FriendsCurrentCount:     len(friendIDs),
		EventsCreatedTotalCount: len(created),
		SignupsUpcomingCount:    upcoming,
		UpdatedAt:               now,
	}
	if err := s.store.PutStatistics(ctx, stats); err != nil {
		return fmt.Errorf("store statistics: %w", err)
	}

	s.bus.Statistics.Publish(domain.StatisticsChange{
		Statistics: stats,
		Actor:      domain.UserRef{UserID: userID},
		Kind:       domain.ChangeUpdated,
	})
	return nil
}

// RegisterUser stores a new account so it can create events and relations.
func (s *Service) RegisterUser(ctx context.Context, user domain.User) (domain.User, error) {
	user.UserID = strings.TrimSpace(user.UserID)
	if user.UserID == "" {
		userID, err := s.newID()
		if err != nil {
			return domain.User{}, fmt.Errorf("generate user id: %w", err)
		}
		user.UserID = userID
	}
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if err := s.store.PutUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("store user: %w", err)
	}
	s.bus.Users.Publish(domain.UserChange{
		User:  user,
		Actor: userRef(user),
		Kind:  domain.ChangeCreated,
	})
	return user, nil
}
