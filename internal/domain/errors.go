package domain

import "errors"

var (
	// ErrUserNotFound is returned when no account exists for an email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates a registration for an already-registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrRegistrationNotFound indicates an unknown pending registration id.
	ErrRegistrationNotFound = errors.New("pending registration not found")
	// ErrResetNotFound indicates an unknown (or not yet verified) reset id.
	ErrResetNotFound = errors.New("password reset not found")
	// ErrCodeExpired is returned when a pending code outlived its TTL.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when the supplied code does not match.
	ErrCodeMismatch = errors.New("verification code mismatch")

	// ErrTestNotFound indicates the test content could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrQuestionNotFound indicates a question id outside the attempt's test.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = errors.New("test attempt not found")
	// ErrAttemptCompleted rejects answers submitted after completion.
	ErrAttemptCompleted = errors.New("test attempt already completed")
	// ErrAlreadyAnswered rejects a second answer to the same question.
	ErrAlreadyAnswered = errors.New("question already answered in this attempt")

	// ErrUnauthorized is returned when the caller identity cannot be resolved.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated caller lacks the role or
	// ownership a resource requires.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable wraps infrastructure failures from backing stores.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
