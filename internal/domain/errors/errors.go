package errors

import stderrors "errors"

var (
	ErrValidationFailed = stderrors.New("validation failed")
	ErrForbidden        = stderrors.New("access forbidden")
	ErrUnauthorized     = stderrors.New("not authorized")
	ErrNotFound         = stderrors.New("resource not found")
	ErrTimeout          = stderrors.New("request timed out")
	ErrInternalServer   = stderrors.New("internal server error")

	ErrUserNotFound       = stderrors.New("user not found")
	ErrTaskNotFound       = stderrors.New("task not found")
	ErrInvalidCredentials = stderrors.New("invalid credentials")
	ErrUserAlreadyExists  = stderrors.New("user already exists")
	ErrBadRequest         = stderrors.New("malformed request")
	ErrConflict           = stderrors.New("resource conflict")
	ErrTooManyRequests    = stderrors.New("too many requests")

	ErrInvalidFirstName    = stderrors.New("invalid first name")
	ErrInvalidLastName     = stderrors.New("invalid last name")
	ErrInvalidEmail        = stderrors.New("invalid email")
	ErrInvalidPassword     = stderrors.New("invalid password")
	ErrInvalidTitle        = stderrors.New("invalid task title")
	ErrInvalidDescription  = stderrors.New("invalid task description")
	ErrInvalidPriority     = stderrors.New("invalid task priority")
	ErrMissingReminderDate = stderrors.New("reminder date is required")
	ErrUnknownUser         = stderrors.New("referenced user does not exist")

	ErrConfigFileReadFailed = stderrors.New("failed to read config file")
	ErrConfigParseFailed    = stderrors.New("failed to parse config file")
	ErrConfigInvalidFormat  = stderrors.New("invalid config value")
)

// Is and As forward to the standard library so callers importing this
// package under its own name keep access to error matching.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// New forwards to the standard library.
func New(text string) error { return stderrors.New(text) }

// Kind reduces err to the taxonomy sentinel it belongs to. Errors outside the
// taxonomy are reported as ErrInternalServer.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, ErrTimeout):
		return ErrTimeout
	case stderrors.Is(err, ErrUnauthorized), stderrors.Is(err, ErrInvalidCredentials):
		return ErrUnauthorized
	case stderrors.Is(err, ErrForbidden):
		return ErrForbidden
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, ErrTaskNotFound), stderrors.Is(err, ErrUserNotFound):
		return ErrNotFound
	case stderrors.Is(err, ErrValidationFailed), stderrors.Is(err, ErrBadRequest):
		return ErrValidationFailed
	default:
		return ErrInternalServer
	}
}
