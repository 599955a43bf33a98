package domain

// ChangeKind classifies a committed mutation.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

// String returns the change kind label used in logs and payloads.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "CREATED"
	case ChangeUpdated:
		return "UPDATED"
	case ChangeDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// FieldTag names a group of entity fields affected by an update.
type FieldTag string

const (
	FieldPeriod     FieldTag = "PERIOD"
	FieldText       FieldTag = "TEXT"
	FieldVisibility FieldTag = "VISIBILITY"
	FieldGame       FieldTag = "GAME"
	FieldProfile    FieldTag = "PROFILE"
	FieldStatus     FieldTag = "STATUS"
)

// FieldSet is the set of field tags touched by one change.
type FieldSet map[FieldTag]struct{}

// NewFieldSet builds a set from the given tags.
func NewFieldSet(tags ...FieldTag) FieldSet {
	if len(tags) == 0 {
		return nil
	}
	set := make(FieldSet, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

// Has reports whether the tag is in the set.
func (s FieldSet) Has(tag FieldTag) bool {
	_, ok := s[tag]
	return ok
}

// Add returns a set containing the existing tags plus the given one.
func (s FieldSet) Add(tag FieldTag) FieldSet {
	next := make(FieldSet, len(s)+1)
	for existing := range s {
		next[existing] = struct{}{}
	}
	next[tag] = struct{}{}
	return next
}

// UserRef identifies the user whose action caused a change.
type UserRef struct {
	UserID      string
	DisplayName string
}

// EventChange notifies one committed mutation of an event.
// FriendsOfCreator carries the creator's mutual friend ids at publish time so
// friends-only delivery can be decided from the payload alone.
type EventChange struct {
	Event            Event
	Actor            UserRef
	Kind             ChangeKind
	Fields           FieldSet
	FriendsOfCreator []string
}

// SignupChange notifies one committed mutation of an event signup.
// The full event payload rides along so owner predicates need no lookup.
type SignupChange struct {
	Signup UserEventSignup
	Event  Event
	Actor  UserRef
	Kind   ChangeKind
	Fields FieldSet
}

// RelationChange notifies one committed mutation of a user relation.
type RelationChange struct {
	Relation   UserRelation
	Actor      UserRef
	Action     RelationAction
	TargetUser UserRef
	Kind       ChangeKind
	Fields     FieldSet
}

// UserChange notifies one committed mutation of a user profile.
// FriendsOfUser carries ids of users related to the changed user so
// relationship-aware feeds can be decided from the payload alone.
type UserChange struct {
	User          User
	Actor         UserRef
	Kind          ChangeKind
	Fields        FieldSet
	FriendsOfUser []string
}

// StatisticsChange notifies recomputed statistics for one user.
type StatisticsChange struct {
	Statistics UserStatistics
	Actor      UserRef
	Kind       ChangeKind
	Fields     FieldSet
}
