package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/friends"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// JoinEvent signs the caller up for an event. Friends-only events are open
// to the creator and the creator's mutual friends only.
func (s *Service) JoinEvent(ctx context.Context, callerID, eventID string, status domain.SignupStatus) (domain.UserEventSignup, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.UserEventSignup{}, err
	}
	event, err := s.store.GetEvent(ctx, strings.TrimSpace(eventID))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeNotFound, "event does not exist")
	}
	if err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("load event: %w", err)
	}
	if _, err := s.store.GetUser(ctx, event.CreatedByUserID); errors.Is(err, storage.ErrNotFound) {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeEventCreatorMissing, "the event creator no longer exists")
	} else if err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("load event creator: %w", err)
	}

	if event.FriendsOnly && event.CreatedByUserID != caller.UserID {
		isFriend, err := friends.AreFriends(ctx, s.store, caller.UserID, event.CreatedByUserID)
		if err != nil {
			return domain.UserEventSignup{}, err
		}
		if !isFriend {
			return domain.UserEventSignup{}, apperrors.New(apperrors.CodeEventFriendsOnly, "this event is open to the creator's friends only")
		}
	}

	if _, err := s.store.GetSignup(ctx, event.EventID, caller.UserID); err == nil {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeSignupExists, "already signed up to this event")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.UserEventSignup{}, fmt.Errorf("load signup: %w", err)
	}

	if status == "" {
		status = domain.SignupAcceptedInvitation
	}
	now := s.now()
	signup := domain.UserEventSignup{
		EventID:    event.EventID,
		UserID:     caller.UserID,
		Status:     status,
		SignedUpAt: now,
		UpdatedAt:  now,
	}
	if err := s.store.PutSignup(ctx, signup); err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("store signup: %w", err)
	}

	s.bus.Signups.Publish(domain.SignupChange{
		Signup: signup,
		Event:  event,
		Actor:  userRef(caller),
		Kind:   domain.ChangeCreated,
	})

	if err := s.RecomputeStatistics(ctx, caller.UserID); err != nil {
		return domain.UserEventSignup{}, err
	}
	return signup, nil
}

// UpdateSignup changes a signup's status. Event creators may change any
// signup on their event; everyone else only their own.
func (s *Service) UpdateSignup(ctx context.Context, callerID, eventID, subjectUserID string, status domain.SignupStatus) (domain.UserEventSignup, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.UserEventSignup{}, err
	}
	event, err := s.store.GetEvent(ctx, strings.TrimSpace(eventID))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeNotFound, "event does not exist")
	}
	if err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("load event: %w", err)
	}

	subjectUserID = strings.TrimSpace(subjectUserID)
	if subjectUserID == "" {
		subjectUserID = caller.UserID
	}
	if subjectUserID != caller.UserID && event.CreatedByUserID != caller.UserID {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeSignupNotOwner, "only the event creator may change other signups")
	}

	signup, err := s.store.GetSignup(ctx, event.EventID, subjectUserID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.UserEventSignup{}, apperrors.New(apperrors.CodeSignupNotFound, "no signup found")
	}
	if err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("load signup: %w", err)
	}

	signup.Status = status
	signup.UpdatedAt = s.now()
	if err := s.store.PutSignup(ctx, signup); err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("store signup: %w", err)
	}

	s.bus.Signups.Publish(domain.SignupChange{
		Signup: signup,
		Event:  event,
		Actor:  userRef(caller),
		Kind:   domain.ChangeUpdated,
		Fields: domain.NewFieldSet(domain.FieldStatus),
	})

	if err := s.RecomputeStatistics(ctx, subjectUserID); err != nil {
		return domain.UserEventSignup{}, err
	}
	return signup, nil
}

// LeaveEvent removes the caller's signup. The published change carries the
// cancelled status so feed predicates see the final state.
func (s *Service) LeaveEvent(ctx context.Context, callerID, eventID string) error {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	signup, err := s.store.GetSignup(ctx, eventID, caller.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeSignupNotFound, "not signed up to this event")
	}
	if err != nil {
		return fmt.Errorf("load signup: %w", err)
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load event: %w", err)
	}

	if err := s.store.DeleteSignup(ctx, eventID, caller.UserID); err != nil {
		return fmt.Errorf("delete signup: %w", err)
	}

	signup.Status = domain.SignupCancelled
	signup.UpdatedAt = s.now()
	s.bus.Signups.Publish(domain.SignupChange{
		Signup: signup,
		Event:  event,
		Actor:  userRef(caller),
		Kind:   domain.ChangeDeleted,
		Fields: domain.NewFieldSet(domain.FieldStatus),
	})

	return s.RecomputeStatistics(ctx, caller.UserID)
}
