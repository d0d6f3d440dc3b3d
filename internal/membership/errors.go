package membership

// Kind classifies membership and invitation failures.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindAlreadyMember
	KindNotAMember
	KindCannotRemoveAdmin
	KindDuplicateInvite
	KindNotFound
	KindInvalidPolicy
	KindPreconditionFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindAlreadyMember:
		return "AlreadyMember"
	case KindNotAMember:
		return "NotAMember"
	case KindCannotRemoveAdmin:
		return "CannotRemoveAdmin"
	case KindDuplicateInvite:
		return "DuplicateInvite"
	case KindNotFound:
		return "NotFound"
	case KindInvalidPolicy:
		return "InvalidPolicy"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	}
	return "Unknown"
}

// Error is a domain failure with a stable code that is safe to return to
// callers. Two errors match with errors.Is when their kinds are equal.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError returns an Error of the given kind carrying a specific code.
func NewError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

var (
	ErrUnauthorized       = NewError(KindUnauthorized, "unauthorized")
	ErrAlreadyMember      = NewError(KindAlreadyMember, "user_is_already_member_of_network")
	ErrNotAMember         = NewError(KindNotAMember, "user_is_not_a_member_of_network")
	ErrCannotRemoveAdmin  = NewError(KindCannotRemoveAdmin, "cannot_remove_admin")
	ErrDuplicateInvite    = NewError(KindDuplicateInvite, "user_is_already_invited_to_network")
	ErrNotFound           = NewError(KindNotFound, "not_found")
	ErrInvalidPolicy      = NewError(KindInvalidPolicy, "invalid_privacy_type")
	ErrPreconditionFailed = NewError(KindPreconditionFailed, "precondition_failed")

	ErrEmailAlreadyInvited = NewError(KindDuplicateInvite, "email_is_already_invited_to_network")
	ErrNetworkNotFound     = NewError(KindNotFound, "network_not_found")
	ErrUserNotFound        = NewError(KindNotFound, "user_not_found")
	ErrNotPending          = NewError(KindPreconditionFailed, "user_is_not_pending")
	ErrContainsUppers      = NewError(KindPreconditionFailed, "network_contains_uppers")
	ErrContainsPartups     = NewError(KindPreconditionFailed, "network_contains_partups")
	ErrNameRequired        = NewError(KindPreconditionFailed, "network_name_required")
	ErrFeatureDisabled     = NewError(KindPreconditionFailed, "feature_disabled")
)
