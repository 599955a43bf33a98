// Package feeds opens live subscriptions over the calendar change bus.
//
// Authorization is resolved once, at attach time. A credential that expires
// mid-subscription does not tear the stream down; revoking access means
// closing the subscription.
package feeds

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/services/calendar/bus"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/friends"
	"github.com/mirakulix/play-together-api/internal/services/calendar/search"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
	"github.com/mirakulix/play-together-api/internal/services/calendar/token"
)

// IdentityResolver resolves an opaque access token into a caller identity.
type IdentityResolver interface {
	Resolve(tokenString string) (token.Identity, error)
}

// Feeds wires the change bus, the friend graph, and token resolution into
// subscriber-facing streams.
type Feeds struct {
	bus      *bus.Bus
	store    storage.Store
	graph    friends.Graph
	resolver IdentityResolver
	clock    func() time.Time
}

// New builds the feed layer. A nil clock means time.Now.
func New(changeBus *bus.Bus, store storage.Store, graph friends.Graph, resolver IdentityResolver, clock func() time.Time) (*Feeds, error) {
	if changeBus == nil || store == nil || graph == nil || resolver == nil {
		return nil, fmt.Errorf("feeds collaborators are not configured")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Feeds{bus: changeBus, store: store, graph: graph, resolver: resolver, clock: clock}, nil
}

// resolveOptional returns the caller for a feed that also serves anonymous
// subscribers. An empty token is anonymous; a bad token is terminal.
func (f *Feeds) resolveOptional(accessToken string) (token.Identity, error) {
	if accessToken == "" {
		return token.Identity{}, nil
	}
	return f.resolver.Resolve(accessToken)
}

// resolveRequired returns the caller for a feed that demands identity.
func (f *Feeds) resolveRequired(accessToken string) (token.Identity, error) {
	if accessToken == "" {
		return token.Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token is required")
	}
	return f.resolver.Resolve(accessToken)
}

// Events streams event changes. Anonymous subscribers see public events
// only; authenticated subscribers additionally see friends-only events from
// their mutual friends. Friends-only delivery is decided from the published
// payload, which carries the creator's friend ids at publish time.
func (f *Feeds) Events(ctx context.Context, accessToken string) (*bus.Subscription[domain.EventChange], error) {
	identity, err := f.resolveOptional(accessToken)
	if err != nil {
		return nil, err
	}
	callerID := identity.UserID
	return bus.Filter(f.bus.Events.Subscribe(), func(change domain.EventChange) bool {
		if !change.Event.FriendsOnly {
			return true
		}
		if callerID == "" {
			return false
		}
		if change.Event.CreatedByUserID == callerID {
			return true
		}
		for _, friendID := range change.FriendsOfCreator {
			if friendID == callerID {
				return true
			}
		}
		return false
	}), nil
}

// SignupFilter narrows a signup feed. Zero fields mean "any".
type SignupFilter struct {
	// EventID limits the stream to signups on one event.
	EventID string
	// UserID limits the stream to one user's signups.
	UserID string
	// OwnerID limits the stream to signups on events created by one user.
	OwnerID string
}

// Signups streams signup changes matching the filter.
func (f *Feeds) Signups(ctx context.Context, accessToken string, filter SignupFilter) (*bus.Subscription[domain.SignupChange], error) {
	if _, err := f.resolveOptional(accessToken); err != nil {
		return nil, err
	}
	return bus.Filter(f.bus.Signups.Subscribe(), func(change domain.SignupChange) bool {
		if filter.EventID != "" && change.Signup.EventID != filter.EventID {
			return false
		}
		if filter.UserID != "" && change.Signup.UserID != filter.UserID {
			return false
		}
		if filter.OwnerID != "" && change.Event.CreatedByUserID != filter.OwnerID {
			return false
		}
		return true
	}), nil
}

// Relations streams relation changes touching the caller, skipping the
// caller's own actions: the client already knows what it just did.
func (f *Feeds) Relations(ctx context.Context, accessToken string) (*bus.Subscription[domain.RelationChange], error) {
	identity, err := f.resolveRequired(accessToken)
	if err != nil {
		return nil, err
	}
	callerID := identity.UserID
	return bus.Filter(f.bus.Relations.Subscribe(), func(change domain.RelationChange) bool {
		if !change.Relation.Touches(callerID) {
			return false
		}
		return change.Actor.UserID != callerID
	}), nil
}

// Users streams profile changes for the caller and users related to them.
func (f *Feeds) Users(ctx context.Context, accessToken string) (*bus.Subscription[domain.UserChange], error) {
	identity, err := f.resolveRequired(accessToken)
	if err != nil {
		return nil, err
	}
	callerID := identity.UserID
	return bus.Filter(f.bus.Users.Subscribe(), func(change domain.UserChange) bool {
		if change.User.UserID == callerID {
			return true
		}
		for _, friendID := range change.FriendsOfUser {
			if friendID == callerID {
				return true
			}
		}
		return false
	}), nil
}

// Statistics streams the caller's own recomputed statistics.
func (f *Feeds) Statistics(ctx context.Context, accessToken string) (*bus.Subscription[domain.StatisticsChange], error) {
	identity, err := f.resolveRequired(accessToken)
	if err != nil {
		return nil, err
	}
	callerID := identity.UserID
	return bus.Filter(f.bus.Statistics.Subscribe(), func(change domain.StatisticsChange) bool {
		return change.Statistics.UserID == callerID
	}), nil
}

// EventSearch opens a live query view: one snapshot, then incremental
// Added/Updated/Removed messages as the result set changes. The caller must
// present a valid token; friendship-scoped visibility needs an identity to
// resolve against.
func (f *Feeds) EventSearch(ctx context.Context, accessToken string, opts search.Options) (*search.View, error) {
	identity, err := f.resolveRequired(accessToken)
	if err != nil {
		return nil, err
	}
	spec, err := search.NewSpec(opts, f.clock)
	if err != nil {
		return nil, err
	}
	return search.OpenView(ctx, search.ViewConfig{
		Spec:     spec,
		CallerID: identity.UserID,
		Events:   f.store,
		Source:   &storeContextSource{store: f.store, graph: f.graph},
		Changes:  f.bus.Events.Subscribe(),
	})
}

// storeContextSource resolves caller context from live storage on every call.
// Nothing is cached: a revoked friendship is gone on the next lookup.
type storeContextSource struct {
	store storage.Store
	graph friends.Graph
}

var _ search.ContextSource = (*storeContextSource)(nil)

func (s *storeContextSource) SearchContext(ctx context.Context, callerID string) (search.Context, error) {
	if callerID == "" {
		return search.Context{}, nil
	}

	friendIDs, err := s.graph.MutualFriendsOf(ctx, callerID)
	if err != nil {
		return search.Context{}, fmt.Errorf("lookup friends: %w", err)
	}

	joined, err := s.joinedEventIDs(ctx, callerID)
	if err != nil {
		return search.Context{}, err
	}

	joinedByFriends := make(map[string]struct{})
	for friendID := range friendIDs {
		friendJoined, err := s.joinedEventIDs(ctx, friendID)
		if err != nil {
			return search.Context{}, err
		}
		for eventID := range friendJoined {
			joinedByFriends[eventID] = struct{}{}
		}
	}

	return search.Context{
		CallerID:                callerID,
		FriendIDs:               friendIDs,
		JoinedEventIDs:          joined,
		JoinedByFriendsEventIDs: joinedByFriends,
	}, nil
}

func (s *storeContextSource) joinedEventIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	signups, err := s.store.ListSignupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	joined := make(map[string]struct{}, len(signups))
	for _, signup := range signups {
		if signupCountsAsJoined(signup.Status) {
			joined[signup.EventID] = struct{}{}
		}
	}
	return joined, nil
}

// signupCountsAsJoined reports whether a signup status means the user is
// actually going.
func signupCountsAsJoined(status domain.SignupStatus) bool {
	switch status {
	case domain.SignupApproved, domain.SignupAcceptedInvitation:
		return true
	default:
		return false
	}
}
