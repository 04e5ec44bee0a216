// Package queryerr classifies the errors the search engine can return so
// that callers can tell a bad query from a broken segment without string
// matching.
package queryerr

import "fmt"

// Stable, externally observable error codes. These are public contract:
// renaming one is a breaking change for any caller that switches on it.
const (
	CodeIncorrectSearchField              = "IncorrectSearchField"
	CodeDuplicateSearchFilters             = "DuplicateSearchFiltersError"
	CodeIncorrectFilterField               = "IncorrectFilterFieldError"
	CodeMissingSearchFilter                = "MissingSearchFilterError"
	CodeTooManyFilterConditionsInSearchQuery = "TooManyFilterConditionsInSearchQueryError"

	CodeInvalidCursor        = "InvalidCursor"
	CodeStorageTokenExpired  = "StorageTokenExpired"
	CodeStorageTokenInvalid  = "StorageTokenInvalid"
	CodeAuthorizationMissing = "AuthorizationMissing"
)

// UserError is a bad-request-shaped error: the query itself was invalid.
// Never retried, and always propagated to the caller untouched.
type UserError struct {
	Code    string
	Message string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUserError builds a tagged user error with a stable short code.
func NewUserError(code, format string, args ...any) *UserError {
	return &UserError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err is a *UserError, unwrapping as needed.
func IsUserError(err error) bool {
	_, ok := AsUserError(err)
	return ok
}

// AsUserError extracts a *UserError from err, unwrapping wrapped errors.
func AsUserError(err error) (*UserError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ue, ok := err.(*UserError); ok {
			return ue, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// CorruptionError marks an invariant violation discovered while serving a
// query: mismatched field IDs, a missing posting, a version byte mismatch.
// Fatal for the query that found it, but must never poison shared state —
// the caller drops the query and moves on.
type CorruptionError struct {
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt segment: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt segment: %s", e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// NewCorruptionError builds a corruption error wrapping the underlying cause.
func NewCorruptionError(reason string, err error) *CorruptionError {
	return &CorruptionError{Reason: reason, Err: err}
}
