package friends

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

type fakeRelationStore struct {
	relations []domain.UserRelation
	listErr   error
}

func (f *fakeRelationStore) PutRelation(ctx context.Context, relation domain.UserRelation) error {
	return nil
}

func (f *fakeRelationStore) GetRelation(ctx context.Context, userAID, userBID string) (domain.UserRelation, error) {
	userAID, userBID, _ = domain.NormalizeRelationPair(userAID, userBID)
	for _, relation := range f.relations {
		if relation.UserAID == userAID && relation.UserBID == userBID {
			return relation, nil
		}
	}
	return domain.UserRelation{}, storage.ErrNotFound
}

func (f *fakeRelationStore) DeleteRelation(ctx context.Context, userAID, userBID string) error {
	return nil
}

func (f *fakeRelationStore) ListRelationsForUser(ctx context.Context, userID string) ([]domain.UserRelation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.UserRelation
	for _, relation := range f.relations {
		if relation.Touches(userID) {
			out = append(out, relation)
		}
	}
	return out, nil
}

func relation(userA, userB string, status domain.RelationStatus) domain.UserRelation {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return domain.UserRelation{UserAID: userA, UserBID: userB, Status: status, CreatedAt: now, UpdatedAt: now}
}

func TestMutualFriendsOfCountsOnlyConfirmedFriendships(t *testing.T) {
	store := &fakeRelationStore{relations: []domain.UserRelation{
		relation("user-1", "user-2", domain.RelationMutualFriends),
		relation("user-1", "user-3", domain.RelationAInvited),
		relation("user-1", "user-4", domain.RelationMutualFriends|domain.RelationBBlocked),
		relation("user-2", "user-5", domain.RelationMutualFriends),
	}}
	graph := NewStoreGraph(store)

	friendIDs, err := graph.MutualFriendsOf(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("mutual friends: %v", err)
	}
	if len(friendIDs) != 1 {
		t.Fatalf("friend count = %d, want 1", len(friendIDs))
	}
	if _, ok := friendIDs["user-2"]; !ok {
		t.Fatalf("user-2 missing from %v", friendIDs)
	}
}

func TestMutualFriendsOfPropagatesStoreErrors(t *testing.T) {
	store := &fakeRelationStore{listErr: errors.New("db gone")}
	graph := NewStoreGraph(store)
	if _, err := graph.MutualFriendsOf(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error from failing store")
	}
}

func TestMutualFriendsOfRequiresUserID(t *testing.T) {
	graph := NewStoreGraph(&fakeRelationStore{})
	if _, err := graph.MutualFriendsOf(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank user id")
	}
}

func TestAreFriends(t *testing.T) {
	store := &fakeRelationStore{relations: []domain.UserRelation{
		relation("user-1", "user-2", domain.RelationMutualFriends),
		relation("user-1", "user-3", domain.RelationABefriended),
	}}

	ok, err := AreFriends(context.Background(), store, "user-2", "user-1")
	if err != nil {
		t.Fatalf("are friends: %v", err)
	}
	if !ok {
		t.Fatal("confirmed friendship not detected")
	}

	ok, err = AreFriends(context.Background(), store, "user-1", "user-3")
	if err != nil {
		t.Fatalf("are friends one-sided: %v", err)
	}
	if ok {
		t.Fatal("one-sided relation counted as friendship")
	}

	ok, err = AreFriends(context.Background(), store, "user-1", "user-9")
	if err != nil {
		t.Fatalf("are friends missing: %v", err)
	}
	if ok {
		t.Fatal("missing relation counted as friendship")
	}
}
