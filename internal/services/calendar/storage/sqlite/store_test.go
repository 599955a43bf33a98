package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/calendar.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventRoundTripAndDelete(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	event := domain.Event{
		EventID:         "event-1",
		Title:           "Friday raid night",
		Description:     "Bring consumables.",
		GameID:          "game-9",
		CreatedByUserID: "user-1",
		StartsAt:        now,
		EndsAt:          now.Add(3 * time.Hour),
		FriendsOnly:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.PutEvent(context.Background(), event); err != nil {
		t.Fatalf("put event: %v", err)
	}

	got, err := store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got != event {
		t.Fatalf("event round trip mismatch: got %+v want %+v", got, event)
	}

	event.Title = "Saturday raid night"
	event.UpdatedAt = now.Add(time.Hour)
	if err := store.PutEvent(context.Background(), event); err != nil {
		t.Fatalf("update event: %v", err)
	}
	got, err = store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("get updated event: %v", err)
	}
	if got.Title != "Saturday raid night" {
		t.Fatalf("update not applied, title = %q", got.Title)
	}

	if err := store.DeleteEvent(context.Background(), "event-1"); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if _, err := store.GetEvent(context.Background(), "event-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get deleted event error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteEvent(context.Background(), "event-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("double delete error = %v, want ErrNotFound", err)
	}
}

func TestListEventsAppliesConditionAndLimit(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	for i, start := range []time.Time{now, now.Add(time.Hour), now.Add(2 * time.Hour)} {
		event := domain.Event{
			EventID:         "event-" + string(rune('a'+i)),
			Title:           "session",
			CreatedByUserID: "user-1",
			StartsAt:        start,
			EndsAt:          start.Add(time.Hour),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := store.PutEvent(context.Background(), event); err != nil {
			t.Fatalf("put event %d: %v", i, err)
		}
	}

	events, err := store.ListEvents(context.Background(), storage.EventQuery{
		Where:  "ends_at >= ?",
		Params: []any{now.Add(90 * time.Minute).UnixMilli()},
	})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("filtered list returned %d events, want 2", len(events))
	}
	if events[0].EventID != "event-b" || events[1].EventID != "event-c" {
		t.Fatalf("unexpected order: %s, %s", events[0].EventID, events[1].EventID)
	}

	limited, err := store.ListEvents(context.Background(), storage.EventQuery{Limit: 1})
	if err != nil {
		t.Fatalf("list limited events: %v", err)
	}
	if len(limited) != 1 || limited[0].EventID != "event-a" {
		t.Fatalf("limited list = %+v, want single event-a", limited)
	}
}

func TestUserRoundTrip(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	user := domain.User{
		UserID:      "user-1",
		DisplayName: "Asta",
		DisplayID:   1042,
		Email:       "asta@example.com",
		UTCOffset:   2 * time.Hour,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	got, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got != user {
		t.Fatalf("user round trip mismatch: got %+v want %+v", got, user)
	}
	if _, err := store.GetUser(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing user error = %v, want ErrNotFound", err)
	}
}

func TestSignupRoundTripAndListing(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	for i, userID := range []string{"user-1", "user-2"} {
		signup := domain.UserEventSignup{
			EventID:    "event-1",
			UserID:     userID,
			Status:     domain.SignupInterested,
			SignedUpAt: now.Add(time.Duration(i) * time.Minute),
			UpdatedAt:  now,
		}
		if err := store.PutSignup(context.Background(), signup); err != nil {
			t.Fatalf("put signup %s: %v", userID, err)
		}
	}

	signup, err := store.GetSignup(context.Background(), "event-1", "user-2")
	if err != nil {
		t.Fatalf("get signup: %v", err)
	}
	if signup.Status != domain.SignupInterested {
		t.Fatalf("signup status = %q", signup.Status)
	}

	signup.Status = domain.SignupApproved
	if err := store.PutSignup(context.Background(), signup); err != nil {
		t.Fatalf("update signup: %v", err)
	}
	signup, err = store.GetSignup(context.Background(), "event-1", "user-2")
	if err != nil {
		t.Fatalf("get updated signup: %v", err)
	}
	if signup.Status != domain.SignupApproved {
		t.Fatalf("signup status after update = %q", signup.Status)
	}

	byEvent, err := store.ListSignupsForEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("list signups for event: %v", err)
	}
	if len(byEvent) != 2 || byEvent[0].UserID != "user-1" {
		t.Fatalf("event signups = %+v", byEvent)
	}

	byUser, err := store.ListSignupsForUser(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("list signups for user: %v", err)
	}
	if len(byUser) != 1 || byUser[0].EventID != "event-1" {
		t.Fatalf("user signups = %+v", byUser)
	}

	if err := store.DeleteSignupsForEvent(context.Background(), "event-1"); err != nil {
		t.Fatalf("delete event signups: %v", err)
	}
	if _, err := store.GetSignup(context.Background(), "event-1", "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get signup after event delete error = %v, want ErrNotFound", err)
	}
}

func TestRelationLookupIsOrderIndependent(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	relation := domain.UserRelation{
		UserAID:   "user-1",
		UserBID:   "user-2",
		Status:    domain.RelationMutualFriends,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutRelation(context.Background(), relation); err != nil {
		t.Fatalf("put relation: %v", err)
	}

	got, err := store.GetRelation(context.Background(), "user-2", "user-1")
	if err != nil {
		t.Fatalf("get relation reversed: %v", err)
	}
	if !got.Mutual() {
		t.Fatalf("relation status = %v, want mutual friends", got.Status)
	}

	relations, err := store.ListRelationsForUser(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("relations for user-2 = %d, want 1", len(relations))
	}

	if err := store.DeleteRelation(context.Background(), "user-2", "user-1"); err != nil {
		t.Fatalf("delete relation reversed: %v", err)
	}
	if _, err := store.GetRelation(context.Background(), "user-1", "user-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get deleted relation error = %v, want ErrNotFound", err)
	}
}

func TestPutRelationRejectsUnnormalizedPair(t *testing.T) {
	store := openTestStore(t)
	err := store.PutRelation(context.Background(), domain.UserRelation{
		UserAID: "user-2",
		UserBID: "user-1",
	})
	if err == nil {
		t.Fatal("put relation accepted a reversed pair")
	}
}

func TestStatisticsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

	stats := domain.UserStatistics{
		UserID:                  "user-1",
		FriendsCurrentCount:     3,
		EventsCreatedTotalCount: 7,
		SignupsUpcomingCount:    2,
		UpdatedAt:               now,
	}
	if err := store.PutStatistics(context.Background(), stats); err != nil {
		t.Fatalf("put statistics: %v", err)
	}
	got, err := store.GetStatistics(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get statistics: %v", err)
	}
	if got != stats {
		t.Fatalf("statistics round trip mismatch: got %+v want %+v", got, stats)
	}
	if _, err := store.GetStatistics(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing statistics error = %v, want ErrNotFound", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("open accepted an empty path")
	}
}
