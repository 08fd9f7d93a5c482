package chat

import "errors"

type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Error is a failure the caller can show to the user as is. Store and bus
// failures are never wrapped in an Error.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrMissingFields      = newError(CodeValidation, "name, username, email and password are required")
	ErrEmptyMessage       = newError(CodeValidation, "message text is empty")
	ErrSelfMessage        = newError(CodeValidation, "cannot message yourself")
	ErrSelfContact        = newError(CodeValidation, "cannot add yourself as a contact")
	ErrEmptyName          = newError(CodeValidation, "name cannot be empty")
	ErrEmptyGroupName     = newError(CodeValidation, "group name cannot be empty")
	ErrNotGroupMember     = newError(CodeValidation, "not a member of this group")
	ErrUsernameTaken      = newError(CodeConflict, "username already taken")
	ErrEmailTaken         = newError(CodeConflict, "email already registered")
	ErrAlreadyContact     = newError(CodeConflict, "user is already in your contacts")
	ErrAlreadyMember      = newError(CodeConflict, "user is already a member of this group")
	ErrUserNotFound       = newError(CodeNotFound, "user not found")
	ErrGroupNotFound      = newError(CodeNotFound, "group not found")
	ErrContactNotFound    = newError(CodeNotFound, "contact not found")
	ErrInvalidCredentials = newError(CodeUnauthorized, "invalid username or password")
	ErrNotGroupAdmin      = newError(CodeUnauthorized, "only the group admin can do that")
)

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func IsValidation(err error) bool   { return hasCode(err, CodeValidation) }
func IsConflict(err error) bool     { return hasCode(err, CodeConflict) }
func IsNotFound(err error) bool     { return hasCode(err, CodeNotFound) }
func IsUnauthorized(err error) bool { return hasCode(err, CodeUnauthorized) }
