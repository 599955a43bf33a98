package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// sideFlags are the relation bits belonging to one user of the pair.
type sideFlags struct {
	invited    domain.RelationStatus
	befriended domain.RelationStatus
	rejected   domain.RelationStatus
	blocked    domain.RelationStatus
}

var (
	sideA = sideFlags{domain.RelationAInvited, domain.RelationABefriended, domain.RelationARejected, domain.RelationABlocked}
	sideB = sideFlags{domain.RelationBInvited, domain.RelationBBefriended, domain.RelationBRejected, domain.RelationBBlocked}
)

// ChangeRelation applies one relation action between the caller and another
// user and announces the outcome. Gaining or losing a mutual friendship
// recomputes both users' statistics.
func (s *Service) ChangeRelation(ctx context.Context, callerID, otherUserID string, action domain.RelationAction) (domain.UserRelation, error) {
	caller, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.UserRelation{}, err
	}
	other, err := s.requireUser(ctx, strings.TrimSpace(otherUserID))
	if err != nil {
		return domain.UserRelation{}, err
	}

	userAID, userBID, ok := domain.NormalizeRelationPair(caller.UserID, other.UserID)
	if !ok {
		return domain.UserRelation{}, apperrors.New(apperrors.CodeRelationSelf, "cannot relate a user to themselves")
	}

	relation, err := s.store.GetRelation(ctx, userAID, userBID)
	created := false
	if errors.Is(err, storage.ErrNotFound) {
		relation = domain.UserRelation{UserAID: userAID, UserBID: userBID, CreatedAt: s.now()}
		created = true
	} else if err != nil {
		return domain.UserRelation{}, fmt.Errorf("load relation: %w", err)
	}

	callerSide, otherSide := sideA, sideB
	if caller.UserID == userBID {
		callerSide, otherSide = sideB, sideA
	}

	wasFriends := relation.Mutual() && !relation.Blocked()
	status, deleted, err := transitionRelation(relation.Status, callerSide, otherSide, action)
	if err != nil {
		return domain.UserRelation{}, err
	}

	relation.Status = status
	relation.UpdatedAt = s.now()

	kind := domain.ChangeUpdated
	switch {
	case deleted:
		if !created {
			if err := s.store.DeleteRelation(ctx, userAID, userBID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return domain.UserRelation{}, fmt.Errorf("delete relation: %w", err)
			}
		}
		kind = domain.ChangeDeleted
	default:
		if err := s.store.PutRelation(ctx, relation); err != nil {
			return domain.UserRelation{}, fmt.Errorf("store relation: %w", err)
		}
		if created {
			kind = domain.ChangeCreated
		}
	}

	s.bus.Relations.Publish(domain.RelationChange{
		Relation:   relation,
		Actor:      userRef(caller),
		Action:     action,
		TargetUser: userRef(other),
		Kind:       kind,
		Fields:     domain.NewFieldSet(domain.FieldStatus),
	})

	isFriends := relation.Mutual() && !relation.Blocked() && !deleted
	if wasFriends != isFriends {
		if err := s.RecomputeStatistics(ctx, caller.UserID); err != nil {
			return domain.UserRelation{}, err
		}
		if err := s.RecomputeStatistics(ctx, other.UserID); err != nil {
			return domain.UserRelation{}, err
		}
	}
	return relation, nil
}

// transitionRelation computes the next status bits for one action. The
// returned deleted flag means the relation row should go away entirely.
func transitionRelation(status domain.RelationStatus, caller, other sideFlags, action domain.RelationAction) (domain.RelationStatus, bool, error) {
	blocked := status&(caller.blocked|other.blocked) != 0

	switch action {
	case domain.RelationActionInvite:
		if blocked {
			return 0, false, apperrors.New(apperrors.CodeRelationBlocked, "relation is blocked")
		}
		if status&domain.RelationMutualFriends == domain.RelationMutualFriends {
			return 0, false, apperrors.New(apperrors.CodeRelationInvalidAction, "already friends")
		}
		if status&other.invited != 0 {
			// Mutual interest: an invite answering an invite is an accept.
			return acceptStatus(status, caller, other), false, nil
		}
		return (status | caller.invited) &^ caller.rejected, false, nil

	case domain.RelationActionAccept:
		if blocked {
			return 0, false, apperrors.New(apperrors.CodeRelationBlocked, "relation is blocked")
		}
		if status&other.invited == 0 {
			return 0, false, apperrors.New(apperrors.CodeRelationInvalidAction, "no pending invitation to accept")
		}
		return acceptStatus(status, caller, other), false, nil

	case domain.RelationActionDecline:
		if status&other.invited == 0 {
			return 0, false, apperrors.New(apperrors.CodeRelationInvalidAction, "no pending invitation to decline")
		}
		next := status&^other.invited | caller.rejected
		return next, false, nil

	case domain.RelationActionRemove:
		next := status &^ (caller.invited | other.invited | caller.befriended | other.befriended | caller.rejected | other.rejected)
		return next, next == domain.RelationNone, nil

	case domain.RelationActionBlock:
		return status | caller.blocked, false, nil

	case domain.RelationActionUnblock:
		if status&caller.blocked == 0 {
			return 0, false, apperrors.New(apperrors.CodeRelationInvalidAction, "nothing to unblock")
		}
		next := status &^ caller.blocked
		return next, next == domain.RelationNone, nil

	default:
		return 0, false, apperrors.New(apperrors.CodeRelationInvalidAction, "unknown relation action")
	}
}

func acceptStatus(status domain.RelationStatus, caller, other sideFlags) domain.RelationStatus {
	next := status | caller.befriended | other.befriended
	next &^= caller.invited | other.invited | caller.rejected | other.rejected
	return next
}
