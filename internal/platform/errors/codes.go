package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Subscription errors
	CodeInvalidSpec Code = "INVALID_SPEC"

	// Event errors
	CodeEventTitleEmpty      Code = "EVENT_TITLE_EMPTY"
	CodeEventPeriodInvalid   Code = "EVENT_PERIOD_INVALID"
	CodeEventNotOwner        Code = "EVENT_NOT_OWNER"
	CodeEventFriendsOnly     Code = "EVENT_FRIENDS_ONLY"
	CodeEventCreatorMissing  Code = "EVENT_CREATOR_MISSING"
	CodeCallToArmsTooFarOut  Code = "CALL_TO_ARMS_TOO_FAR_OUT"
	CodeCallToArmsVisibility Code = "CALL_TO_ARMS_VISIBILITY_LOCKED"
	CodeCallToArmsNoFriends  Code = "CALL_TO_ARMS_NO_FRIENDS"

	// Signup errors
	CodeSignupExists   Code = "SIGNUP_EXISTS"
	CodeSignupNotFound Code = "SIGNUP_NOT_FOUND"
	CodeSignupNotOwner Code = "SIGNUP_NOT_OWNER"

	// Relation errors
	CodeRelationSelf          Code = "RELATION_SELF"
	CodeRelationInvalidAction Code = "RELATION_INVALID_ACTION"
	CodeRelationBlocked       Code = "RELATION_BLOCKED"

	// User errors
	CodeUserDisplayNameTooShort Code = "USER_DISPLAY_NAME_TOO_SHORT"
	CodeUserEmailInvalid        Code = "USER_EMAIL_INVALID"
	CodeUserOffsetOutOfRange    Code = "USER_UTC_OFFSET_OUT_OF_RANGE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidSpec,
		CodeEventTitleEmpty,
		CodeEventPeriodInvalid,
		CodeRelationSelf,
		CodeRelationInvalidAction,
		CodeUserDisplayNameTooShort,
		CodeUserEmailInvalid,
		CodeUserOffsetOutOfRange:
		return codes.InvalidArgument

	// PermissionDenied - caller lacks rights over the resource
	case CodeEventNotOwner,
		CodeEventFriendsOnly,
		CodeSignupNotOwner,
		CodeRelationBlocked:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodeSignupExists,
		CodeCallToArmsTooFarOut,
		CodeCallToArmsVisibility,
		CodeCallToArmsNoFriends:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeSignupNotFound,
		CodeEventCreatorMissing:
		return codes.NotFound

	case CodeUnauthorized:
		return codes.Unauthenticated

	default:
		return codes.Internal
	}
}
