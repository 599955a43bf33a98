// Package search turns event-search options into a predicate that serves
// both the initial snapshot query and the live view's incremental matching.
package search

import (
	"strings"
	"time"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/platform/grpc/pagination"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// Options are the raw event-search criteria supplied at subscribe time.
// All fields are optional; zero values mean "not given".
type Options struct {
	Search string

	StartsBeforeDate *time.Time
	StartsAfterDate  *time.Time
	EndsBeforeDate   *time.Time
	EndsAfterDate    *time.Time

	OnlyPrivate         bool
	OnlyByFriends       bool
	OnlyByUsers         []string
	OnlyGames           []string
	OnlyJoined          bool
	OnlyJoinedByFriends bool

	IncludePrivate         bool
	IncludeByFriends       bool
	IncludeByUsers         []string
	IncludeGames           []string
	IncludeJoined          bool
	IncludeJoinedByFriends bool

	// Filter is an optional AIP-160 expression over event fields.
	Filter string

	// PageSize bounds the initial snapshot. Zero means the default page
	// size; values above the maximum are clamped.
	PageSize int32
}

// Snapshot page-size bounds. Live matching is unaffected; only the initial
// listing is paged.
var snapshotPageSize = pagination.PageSizeConfig{Default: 100, Max: 500}

// Context carries the caller-dependent sets a predicate needs. It is looked
// up fresh for every evaluated change so friendship revocations take effect
// immediately.
type Context struct {
	CallerID                string
	FriendIDs               map[string]struct{}
	JoinedEventIDs          map[string]struct{}
	JoinedByFriendsEventIDs map[string]struct{}
}

// Spec is a parsed, immutable event-search specification. NewSpec fixes the
// reference time once, so a long-lived subscription keeps the window the
// caller asked for.
type Spec struct {
	search string

	startsBefore *time.Time
	startsAfter  *time.Time
	endsBefore   *time.Time
	endsAfter    *time.Time

	onlyPrivate         bool
	onlyByFriends       bool
	onlyByUsers         map[string]struct{}
	onlyGames           map[string]struct{}
	onlyJoined          bool
	onlyJoinedByFriends bool

	includePrivate         bool
	includeByFriends       bool
	includeByUsers         map[string]struct{}
	includeGames           map[string]struct{}
	includeJoined          bool
	includeJoinedByFriends bool

	filter *EventFilter

	snapshotLimit int
}

// NewSpec parses options into a specification. Malformed options yield an
// invalid-spec error before any snapshot is produced.
func NewSpec(opts Options, clock func() time.Time) (*Spec, error) {
	if clock == nil {
		clock = time.Now
	}

	filter, err := ParseEventFilter(opts.Filter)
	if err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidSpec,
			"search filter is malformed",
			map[string]string{"Reason": err.Error()})
	}

	spec := &Spec{
		search:              strings.ToLower(strings.TrimSpace(opts.Search)),
		startsBefore:        opts.StartsBeforeDate,
		startsAfter:         opts.StartsAfterDate,
		endsBefore:          opts.EndsBeforeDate,
		endsAfter:           opts.EndsAfterDate,
		onlyPrivate:         opts.OnlyPrivate,
		onlyByFriends:       opts.OnlyByFriends,
		onlyByUsers:         toSet(opts.OnlyByUsers),
		onlyGames:           toSet(opts.OnlyGames),
		onlyJoined:          opts.OnlyJoined,
		onlyJoinedByFriends: opts.OnlyJoinedByFriends,

		includePrivate:         opts.IncludePrivate,
		includeByFriends:       opts.IncludeByFriends,
		includeByUsers:         toSet(opts.IncludeByUsers),
		includeGames:           toSet(opts.IncludeGames),
		includeJoined:          opts.IncludeJoined,
		includeJoinedByFriends: opts.IncludeJoinedByFriends,

		filter: filter,

		snapshotLimit: pagination.ClampPageSize(opts.PageSize, snapshotPageSize),
	}

	// Without an end bound, finished events are excluded.
	if spec.endsBefore == nil && spec.endsAfter == nil {
		now := clock().UTC()
		spec.endsAfter = &now
	}

	return spec, nil
}

func toSet(values []string) map[string]struct{} {
	var set map[string]struct{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{})
		}
		set[value] = struct{}{}
	}
	return set
}

func (s *Spec) hasOnly() bool {
	return s.onlyPrivate || s.onlyByFriends || s.onlyJoined || s.onlyJoinedByFriends ||
		len(s.onlyByUsers) > 0 || len(s.onlyGames) > 0
}

// Matches reports whether one event belongs in the result for the given
// caller context. Pure apart from reading the passed-in sets.
func (s *Spec) Matches(event domain.Event, ctx Context) bool {
	if s == nil {
		return false
	}

	if !s.inDateWindow(event) {
		return false
	}
	if !s.matchesText(event) {
		return false
	}
	if event.FriendsOnly && !visibleTo(event, ctx) {
		return false
	}

	if s.hasOnly() {
		// only* constraints AND-narrow and win over include*.
		if s.onlyPrivate && !event.FriendsOnly {
			return false
		}
		if s.onlyByFriends && !inSet(ctx.FriendIDs, event.CreatedByUserID) {
			return false
		}
		if len(s.onlyByUsers) > 0 && !inSet(s.onlyByUsers, event.CreatedByUserID) {
			return false
		}
		if len(s.onlyGames) > 0 && !inSet(s.onlyGames, event.GameID) {
			return false
		}
		if s.onlyJoined && !inSet(ctx.JoinedEventIDs, event.EventID) {
			return false
		}
		if s.onlyJoinedByFriends && !inSet(ctx.JoinedByFriendsEventIDs, event.EventID) {
			return false
		}
	} else if !s.matchesBaseline(event, ctx) {
		return false
	}

	return s.filter.Matches(event)
}

// matchesBaseline is the public-unrestricted result widened by include*.
func (s *Spec) matchesBaseline(event domain.Event, ctx Context) bool {
	if !event.FriendsOnly {
		return true
	}
	if s.includePrivate {
		return true
	}
	if s.includeByFriends && inSet(ctx.FriendIDs, event.CreatedByUserID) {
		return true
	}
	if inSet(s.includeByUsers, event.CreatedByUserID) {
		return true
	}
	if inSet(s.includeGames, event.GameID) {
		return true
	}
	if s.includeJoined && inSet(ctx.JoinedEventIDs, event.EventID) {
		return true
	}
	if s.includeJoinedByFriends && inSet(ctx.JoinedByFriendsEventIDs, event.EventID) {
		return true
	}
	return false
}

func (s *Spec) inDateWindow(event domain.Event) bool {
	if s.startsBefore != nil && event.StartsAt.After(*s.startsBefore) {
		return false
	}
	if s.startsAfter != nil && event.StartsAt.Before(*s.startsAfter) {
		return false
	}
	if s.endsBefore != nil && event.EndsAt.After(*s.endsBefore) {
		return false
	}
	if s.endsAfter != nil && event.EndsAt.Before(*s.endsAfter) {
		return false
	}
	return true
}

func (s *Spec) matchesText(event domain.Event) bool {
	if s.search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(event.Title), s.search) ||
		strings.Contains(strings.ToLower(event.Description), s.search)
}

// visibleTo reports whether a friends-only event may be seen by the caller:
// only the creator and the creator's mutual friends qualify.
func visibleTo(event domain.Event, ctx Context) bool {
	if ctx.CallerID == "" {
		return false
	}
	if ctx.CallerID == event.CreatedByUserID {
		return true
	}
	return inSet(ctx.FriendIDs, event.CreatedByUserID)
}

func inSet(set map[string]struct{}, value string) bool {
	if len(set) == 0 || value == "" {
		return false
	}
	_, ok := set[value]
	return ok
}

// SnapshotQuery narrows the snapshot listing with the conditions that can be
// pushed into SQL: the date window and the optional filter expression. The
// caller-dependent checks run in memory via Matches afterwards.
func (s *Spec) SnapshotQuery() storage.EventQuery {
	if s == nil {
		return storage.EventQuery{}
	}
	var clauses []string
	var params []any

	if s.startsBefore != nil {
		clauses = append(clauses, "starts_at <= ?")
		params = append(params, s.startsBefore.UTC().UnixMilli())
	}
	if s.startsAfter != nil {
		clauses = append(clauses, "starts_at >= ?")
		params = append(params, s.startsAfter.UTC().UnixMilli())
	}
	if s.endsBefore != nil {
		clauses = append(clauses, "ends_at <= ?")
		params = append(params, s.endsBefore.UTC().UnixMilli())
	}
	if s.endsAfter != nil {
		clauses = append(clauses, "ends_at >= ?")
		params = append(params, s.endsAfter.UTC().UnixMilli())
	}
	if clause, filterParams := s.filter.SQL(); clause != "" {
		clauses = append(clauses, clause)
		params = append(params, filterParams...)
	}

	return storage.EventQuery{
		Where:  strings.Join(clauses, " AND "),
		Params: params,
		Limit:  s.snapshotLimit,
	}
}
