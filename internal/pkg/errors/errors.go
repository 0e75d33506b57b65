package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
)

// Machine readable reasons carried by AuthError.
const (
	ReasonMissingToken        = "missing_token"
	ReasonInvalidToken        = "invalid_token"
	ReasonInactive            = "inactive"
	ReasonWrongRole           = "wrong_role"
	ReasonNoSubscription      = "no_subscription"
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonInvalidCredentials  = "invalid_credentials"
	ReasonEmailNotVerified    = "email_not_verified"
	ReasonCodeInvalid         = "code_invalid"
	ReasonCodeExpired         = "code_expired"
	ReasonCodeUsed            = "code_used"
)

// AuthError is an ErrUnauthorized with a reason the client can act on.
type AuthError struct {
	Reason  string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return "unauthorized: " + e.Reason + ": " + e.Message
	}
	return "unauthorized: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

func Unauthorized(reason, message string) error {
	return &AuthError{Reason: reason, Message: message}
}

// AuthReason returns the reason of an AuthError in err's chain, or "" if there is none.
func AuthReason(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
