// Package domain defines the calendar entities shared by storage, the change
// bus, and the subscription feeds.
package domain

import (
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	UserID         string
	DisplayName    string
	DisplayID      int
	Email          string
	AvatarFilename string
	UTCOffset      time.Duration
	DeviceToken    string
	SoftDeleted    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Event is a scheduled gaming session on the calendar.
type Event struct {
	EventID         string
	Title           string
	Description     string
	GameID          string
	CreatedByUserID string
	StartsAt        time.Time
	EndsAt          time.Time
	FriendsOnly     bool
	CallToArms      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SignupStatus describes a user's standing on an event.
type SignupStatus string

const (
	SignupInvited            SignupStatus = "INVITED"
	SignupAcceptedInvitation SignupStatus = "ACCEPTED_INVITATION"
	SignupInterested         SignupStatus = "INTERESTED"
	SignupApproved           SignupStatus = "APPROVED"
	SignupRejected           SignupStatus = "REJECTED"
	SignupCancelled          SignupStatus = "CANCELLED"
)

// UserEventSignup links a user to an event with a status.
type UserEventSignup struct {
	EventID    string
	UserID     string
	Status     SignupStatus
	SignedUpAt time.Time
	UpdatedAt  time.Time
}

// RelationStatus is a bit set describing both directions of a relation.
// UserA and UserB each contribute their own flags; a relation only counts as
// mutual friendship when both befriended bits are set.
type RelationStatus int

const (
	RelationNone        RelationStatus = 0
	RelationAInvited    RelationStatus = 1 << 0
	RelationBInvited    RelationStatus = 1 << 1
	RelationABefriended RelationStatus = 1 << 2
	RelationBBefriended RelationStatus = 1 << 3
	RelationARejected   RelationStatus = 1 << 4
	RelationBRejected   RelationStatus = 1 << 5
	RelationABlocked    RelationStatus = 1 << 6
	RelationBBlocked    RelationStatus = 1 << 7

	// RelationMutualFriends is the only combination treated as friendship.
	RelationMutualFriends = RelationABefriended | RelationBBefriended
)

// UserRelation is an unordered pair of users with directional status flags.
// The pair is stored with UserAID < UserBID so lookups are order-independent.
type UserRelation struct {
	UserAID   string
	UserBID   string
	Status    RelationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mutual reports whether both sides have confirmed the friendship.
func (r UserRelation) Mutual() bool {
	return r.Status&RelationMutualFriends == RelationMutualFriends
}

// Touches reports whether the relation involves the given user.
func (r UserRelation) Touches(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && (r.UserAID == userID || r.UserBID == userID)
}

// PartnerOf returns the other user of the pair.
func (r UserRelation) PartnerOf(userID string) (string, bool) {
	switch userID {
	case r.UserAID:
		return r.UserBID, true
	case r.UserBID:
		return r.UserAID, true
	default:
		return "", false
	}
}

// Blocked reports whether either side has blocked the other.
func (r UserRelation) Blocked() bool {
	return r.Status&(RelationABlocked|RelationBBlocked) != 0
}

// RelationAction is a user-initiated change to a relation.
type RelationAction string

const (
	RelationActionInvite  RelationAction = "INVITE"
	RelationActionAccept  RelationAction = "ACCEPT"
	RelationActionDecline RelationAction = "DECLINE"
	RelationActionRemove  RelationAction = "REMOVE"
	RelationActionBlock   RelationAction = "BLOCK"
	RelationActionUnblock RelationAction = "UNBLOCK"
)

// UserStatistics aggregates per-user activity counters.
type UserStatistics struct {
	UserID                  string
	FriendsCurrentCount     int
	EventsCreatedTotalCount int
	SignupsUpcomingCount    int
	UpdatedAt               time.Time
}

// NormalizeRelationPair orders two user ids the way relations are stored.
func NormalizeRelationPair(userA, userB string) (string, string, bool) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" || userA == userB {
		return "", "", false
	}
	if userA < userB {
		return userA, userB, true
	}
	return userB, userA, true
}
