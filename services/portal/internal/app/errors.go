package app

import "errors"

var (
	ErrPhoneRequired = errors.New("phone number required")
	ErrNameRequired  = errors.New("display name required")

	// ErrMalformedPhone rejects numbers that do not strip to a plausible
	// digit sequence.
	ErrMalformedPhone = errors.New("phone number is invalid")

	// ErrReservedName rejects sign-ups claiming a reserved display name
	// from a non-administrator phone number.
	ErrReservedName = errors.New("display name is reserved")

	ErrAlreadyRegistered = errors.New("phone number already registered")
	ErrUnknownPhone      = errors.New("phone number not registered")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")

	ErrCallNotFound       = errors.New("call not found")
	ErrNotCallParticipant = errors.New("not a participant of this call")
	ErrCallTransition     = errors.New("call is not in a state that allows this action")
	ErrCalleeRequired     = errors.New("callee required")
)
