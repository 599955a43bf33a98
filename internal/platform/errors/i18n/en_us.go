package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInvalidSpec             = "INVALID_SPEC"
	CodeEventTitleEmpty         = "EVENT_TITLE_EMPTY"
	CodeEventPeriodInvalid      = "EVENT_PERIOD_INVALID"
	CodeEventNotOwner           = "EVENT_NOT_OWNER"
	CodeEventFriendsOnly        = "EVENT_FRIENDS_ONLY"
	CodeEventCreatorMissing     = "EVENT_CREATOR_MISSING"
	CodeCallToArmsTooFarOut     = "CALL_TO_ARMS_TOO_FAR_OUT"
	CodeCallToArmsVisibility    = "CALL_TO_ARMS_VISIBILITY_LOCKED"
	CodeCallToArmsNoFriends     = "CALL_TO_ARMS_NO_FRIENDS"
	CodeSignupExists            = "SIGNUP_EXISTS"
	CodeSignupNotFound          = "SIGNUP_NOT_FOUND"
	CodeSignupNotOwner          = "SIGNUP_NOT_OWNER"
	CodeRelationSelf            = "RELATION_SELF"
	CodeRelationInvalidAction   = "RELATION_INVALID_ACTION"
	CodeRelationBlocked         = "RELATION_BLOCKED"
	CodeUserDisplayNameTooShort = "USER_DISPLAY_NAME_TOO_SHORT"
	CodeUserEmailInvalid        = "USER_EMAIL_INVALID"
	CodeUserOffsetOutOfRange    = "USER_UTC_OFFSET_OUT_OF_RANGE"
	CodeNotFound                = "NOT_FOUND"
)

// enUS holds the default English error message templates.
var enUS = map[Code]string{
	CodeUnauthorized:            "You are not authorized to perform this action.",
	CodeInvalidSpec:             "The search options are invalid{{if .Reason}}: {{.Reason}}{{end}}.",
	CodeEventTitleEmpty:         "The event title cannot be empty.",
	CodeEventPeriodInvalid:      "The event start and end dates are not in the correct order.",
	CodeEventNotOwner:           "Only the creator of the event can do this.",
	CodeEventFriendsOnly:        "This event is limited to friends of the creator.",
	CodeEventCreatorMissing:     "The creator of this event no longer exists.",
	CodeCallToArmsTooFarOut:     "A call to arms must start within {{.Window}} minutes.",
	CodeCallToArmsVisibility:    "The visibility of a call to arms cannot be changed.",
	CodeCallToArmsNoFriends:     "You need friends to issue a call to arms.",
	CodeSignupExists:            "You are already signed up to this event.",
	CodeSignupNotFound:          "No signup found for this event.",
	CodeSignupNotOwner:          "Only the creator of the event can modify other signups.",
	CodeRelationSelf:            "You cannot change a relation to yourself.",
	CodeRelationInvalidAction:   "This relation change is not allowed.",
	CodeRelationBlocked:         "This user cannot be contacted.",
	CodeUserDisplayNameTooShort: "The display name is too short.",
	CodeUserEmailInvalid:        "The email address is invalid.",
	CodeUserOffsetOutOfRange:    "The UTC offset cannot exceed 24 hours.",
	CodeNotFound:                "The requested record was not found.",
}
