// Package friends resolves mutual friendships from stored relations.
//
// Lookups always hit the relation store; results are never cached, so a
// revoked friendship is reflected by the very next lookup.
package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// Graph answers friendship questions for feed filtering.
type Graph interface {
	// MutualFriendsOf returns the set of user ids that share a confirmed
	// mutual friendship with the given user.
	MutualFriendsOf(ctx context.Context, userID string) (map[string]struct{}, error)
}

// StoreGraph reads friendships straight from a relation store.
type StoreGraph struct {
	relations storage.RelationStore
}

var _ Graph = (*StoreGraph)(nil)

// NewStoreGraph builds a store-backed friendship graph.
func NewStoreGraph(relations storage.RelationStore) *StoreGraph {
	return &StoreGraph{relations: relations}
}

// MutualFriendsOf lists the user's confirmed friends. Pending invitations,
// rejections, and blocked relations do not count.
func (g *StoreGraph) MutualFriendsOf(ctx context.Context, userID string) (map[string]struct{}, error) {
	if g == nil || g.relations == nil {
		return nil, fmt.Errorf("relation store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	relations, err := g.relations.ListRelationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	friendIDs := make(map[string]struct{}, len(relations))
	for _, relation := range relations {
		if !relation.Mutual() || relation.Blocked() {
			continue
		}
		if partnerID, ok := relation.PartnerOf(userID); ok {
			friendIDs[partnerID] = struct{}{}
		}
	}
	return friendIDs, nil
}

// AreFriends reports whether two users share a confirmed mutual friendship.
func AreFriends(ctx context.Context, relations storage.RelationStore, userA, userB string) (bool, error) {
	if relations == nil {
		return false, fmt.Errorf("relation store is not configured")
	}
	relation, err := relations.GetRelation(ctx, userA, userB)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get relation: %w", err)
	}
	return relation.Mutual() && !relation.Blocked(), nil
}
