// Package service implements the calendar mutations. Every committed state
// change is persisted first, then published exactly once on the change bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/platform/id"
	"github.com/mirakulix/play-together-api/internal/services/calendar/bus"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/friends"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

const (
	// callToArmsMaxLead is how far in the future a call to arms may start.
	callToArmsMaxLead = 90 * time.Minute
	// callToArmsDuration is the default length of a call to arms.
	callToArmsDuration = 45 * time.Minute
	// callToArmsRescheduleLead bounds moving an existing call to arms.
	callToArmsRescheduleLead = 60 * time.Minute
	// callToArmsMaxEnd bounds how far out a call to arms may run.
	callToArmsMaxEnd = 4 * time.Hour
)

// Service owns the calendar mutations.
type Service struct {
	store storage.Store
	bus   *bus.Bus
	graph friends.Graph
	clock func() time.Time
	newID func() (string, error)
}

// Config wires the service. Clock and NewID default to time.Now and the
// platform id generator.
type Config struct {
	Store storage.Store
	Bus   *bus.Bus
	Graph friends.Graph
	Clock func() time.Time
	NewID func() (string, error)
}

// New builds the mutation service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Bus == nil || cfg.Graph == nil {
		return nil, fmt.Errorf("service collaborators are not configured")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	return &Service{
		store: cfg.Store,
		bus:   cfg.Bus,
		graph: cfg.Graph,
		clock: cfg.Clock,
		newID: cfg.NewID,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) requireUser(ctx context.Context, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, apperrors.New(apperrors.CodeUnauthorized, "caller is not authenticated")
	}
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.User{}, apperrors.New(apperrors.CodeNotFound, "user does not exist")
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *Service) friendIDsOf(ctx context.Context, userID string) ([]string, error) {
	set, err := s.graph.MutualFriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup friends: %w", err)
	}
	out := make([]string, 0, len(set))
	for friendID := range set {
		out = append(out, friendID)
	}
	return out, nil
}

// CreateEventInput carries the createEvent arguments.
type CreateEventInput struct {
	Title       string
	Description string
	GameID      string
	StartsAt    time.Time
	EndsAt      time.Time
	FriendsOnly bool
}

// CreateEvent persists a new event and announces it.
func (s *Service) CreateEvent(ctx context.Context, callerID string, in CreateEventInput) (domain.Event, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.Event{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Event{}, apperrors.New(apperrors.CodeEventTitleEmpty, "event title is required")
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() || in.EndsAt.Before(in.StartsAt) {
		return domain.Event{}, apperrors.New(apperrors.CodeEventPeriodInvalid, "event period is invalid")
	}

	eventID, err := s.newID()
	if err != nil {
		return domain.Event{}, fmt.Errorf("generate event id: %w", err)
	}
	now := s.now()
	event := domain.Event{
		EventID:         eventID,
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		GameID:          strings.TrimSpace(in.GameID),
		CreatedByUserID: caller.UserID,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
		FriendsOnly:     in.FriendsOnly,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("store event: %w", err)
	}

	change := domain.EventChange{
		Event: event,
		Actor: userRef(caller),
		Kind:  domain.ChangeCreated,
	}
	if event.FriendsOnly {
		if change.FriendsOfCreator, err = s.friendIDsOf(ctx, caller.UserID); err != nil {
			return domain.Event{}, err
		}
	}
	s.bus.Events.Publish(change)

	if err := s.RecomputeStatistics(ctx, caller.UserID); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

// CallToArmsInput carries the callToArms arguments.
type CallToArmsInput struct {
	Title    string
	GameID   string
	StartsAt time.Time
}

// CallToArms creates a short-notice friends-only event. Callers without any
// mutual friends have no one to call.
func (s *Service) CallToArms(ctx context.Context, callerID string, in CallToArmsInput) (domain.Event, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.Event{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Event{}, apperrors.New(apperrors.CodeEventTitleEmpty, "event title is required")
	}
	now := s.now()
	if in.StartsAt.After(now.Add(callToArmsMaxLead)) {
		return domain.Event{}, apperrors.New(apperrors.CodeCallToArmsTooFarOut, "call to arms must start soon")
	}

	friendIDs, err := s.friendIDsOf(ctx, caller.UserID)
	if err != nil {
		return domain.Event{}, err
	}
	if len(friendIDs) == 0 {
		return domain.Event{}, apperrors.New(apperrors.CodeCallToArmsNoFriends, "a call to arms needs friends to call")
	}

	eventID, err := s.newID()
	if err != nil {
		return domain.Event{}, fmt.Errorf("generate event id: %w", err)
	}
	event := domain.Event{
		EventID:         eventID,
		Title:           title,
		GameID:          strings.TrimSpace(in.GameID),
		CreatedByUserID: caller.UserID,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.StartsAt.UTC().Add(callToArmsDuration),
		FriendsOnly:     true,
		CallToArms:      true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("store event: %w", err)
	}

	s.bus.Events.Publish(domain.EventChange{
		Event:            event,
		Actor:            userRef(caller),
		Kind:             domain.ChangeCreated,
		FriendsOfCreator: friendIDs,
	})

	if err := s.RecomputeStatistics(ctx, caller.UserID); err != nil {
		return domain.Event{}, err
	}
	for _, friendID := range friendIDs {
		if err := s.RecomputeStatistics(ctx, friendID); err != nil {
			return domain.Event{}, err
		}
	}
	return event, nil
}

// UpdateEventInput carries the updateEvent arguments. Nil fields are left
// unchanged.
type UpdateEventInput struct {
	EventID     string
	Title       *string
	Description *string
	GameID      *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	FriendsOnly *bool
}

// UpdateEvent edits an event. Only the creator may edit; the published
// change carries tags for the field groups that actually changed.
func (s *Service) UpdateEvent(ctx context.Context, callerID string, in UpdateEventInput) (domain.Event, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.Event{}, err
	}
	event, err := s.store.GetEvent(ctx, strings.TrimSpace(in.EventID))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Event{}, apperrors.New(apperrors.CodeNotFound, "event does not exist")
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("load event: %w", err)
	}
	if event.CreatedByUserID != caller.UserID {
		return domain.Event{}, apperrors.New(apperrors.CodeEventNotOwner, "only the creator may edit an event")
	}

	now := s.now()
	var fields domain.FieldSet

	if in.StartsAt != nil && !in.StartsAt.IsZero() {
		if event.CallToArms && in.StartsAt.After(now.Add(callToArmsRescheduleLead)) {
			return domain.Event{}, apperrors.New(apperrors.CodeCallToArmsTooFarOut, "call to arms must stay short notice")
		}
		event.StartsAt = in.StartsAt.UTC()
		fields = fields.Add(domain.FieldPeriod)
	}
	if in.EndsAt != nil && !in.EndsAt.IsZero() {
		if event.CallToArms && in.EndsAt.After(now.Add(callToArmsMaxEnd)) {
			return domain.Event{}, apperrors.New(apperrors.CodeCallToArmsTooFarOut, "call to arms must end soon")
		}
		event.EndsAt = in.EndsAt.UTC()
		fields = fields.Add(domain.FieldPeriod)
	}
	if event.EndsAt.Before(event.StartsAt) {
		return domain.Event{}, apperrors.New(apperrors.CodeEventPeriodInvalid, "event period is invalid")
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		event.Title = strings.TrimSpace(*in.Title)
		fields = fields.Add(domain.FieldText)
	}
	if in.Description != nil {
		event.Description = strings.TrimSpace(*in.Description)
		fields = fields.Add(domain.FieldText)
	}
	if in.FriendsOnly != nil && *in.FriendsOnly != event.FriendsOnly {
		if event.CallToArms {
			return domain.Event{}, apperrors.New(apperrors.CodeCallToArmsVisibility, "a call to arms stays friends-only")
		}
		event.FriendsOnly = *in.FriendsOnly
		fields = fields.Add(domain.FieldVisibility)
	}
	if in.GameID != nil && strings.TrimSpace(*in.GameID) != "" {
		event.GameID = strings.TrimSpace(*in.GameID)
		fields = fields.Add(domain.FieldGame)
	}

	if len(fields) == 0 {
		return event, nil
	}

	event.UpdatedAt = now
	if err := s.store.PutEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("store event: %w", err)
	}

	change := domain.EventChange{
		Event:  event,
		Actor:  userRef(caller),
		Kind:   domain.ChangeUpdated,
		Fields: fields,
	}
	if event.FriendsOnly {
		if change.FriendsOfCreator, err = s.friendIDsOf(ctx, caller.UserID); err != nil {
			return domain.Event{}, err
		}
	}
	s.bus.Events.Publish(change)

	if fields.Has(domain.FieldPeriod) {
		if err := s.RecomputeStatistics(ctx, caller.UserID); err != nil {
			return domain.Event{}, err
		}
	}
	return event, nil
}

// DeleteEvent removes an event and its signups, then announces the removal.
func (s *Service) DeleteEvent(ctx context.Context, callerID, eventID string) error {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return err
	}
	event, err := s.store.GetEvent(ctx, strings.TrimSpace(eventID))
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "event does not exist")
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if event.CreatedByUserID != caller.UserID {
		return apperrors.New(apperrors.CodeEventNotOwner, "only the creator may delete an event")
	}

	if err := s.store.DeleteSignupsForEvent(ctx, event.EventID); err != nil {
		return fmt.Errorf("delete signups: %w", err)
	}
	if err := s.store.DeleteEvent(ctx, event.EventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	change := domain.EventChange{
		Event: event,
		Actor: userRef(caller),
		Kind:  domain.ChangeDeleted,
	}
	if event.FriendsOnly {
		if change.FriendsOfCreator, err = s.friendIDsOf(ctx, caller.UserID); err != nil {
			return err
		}
	}
	s.bus.Events.Publish(change)

	return s.RecomputeStatistics(ctx, caller.UserID)
}

func userRef(user domain.User) domain.UserRef {
	return domain.UserRef{UserID: user.UserID, DisplayName: user.DisplayName}
}
