package panel

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every error the voting actor returns to a caller.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindAuthenticationFailed
	KindNotAdmin
	KindAlreadyVoted
	KindAlreadyApproved
	KindNotApproved
	KindProjectNotFound
	KindPanelistNotFound
	KindDuplicateSlug
	KindTooManyFavorites
	KindIncompleteBallot
	KindInvalidRequest
	KindSyncFailed
	KindPersistenceFailed
	KindUnavailable
	KindNotFound
	KindMethodNotAllowed
)

var kindNames = map[Kind]string{
	KindInternal:             "Internal",
	KindUnauthorized:         "Unauthorized",
	KindAuthenticationFailed: "AuthenticationFailed",
	KindNotAdmin:             "NotAdmin",
	KindAlreadyVoted:         "AlreadyVoted",
	KindAlreadyApproved:      "AlreadyApproved",
	KindNotApproved:          "NotApproved",
	KindProjectNotFound:      "ProjectNotFound",
	KindPanelistNotFound:     "PanelistNotFound",
	KindDuplicateSlug:        "DuplicateSlug",
	KindTooManyFavorites:     "TooManyFavorites",
	KindIncompleteBallot:     "IncompleteBallot",
	KindInvalidRequest:       "InvalidRequest",
	KindSyncFailed:           "SyncFailed",
	KindPersistenceFailed:    "PersistenceFailed",
	KindUnavailable:          "Unavailable",
	KindNotFound:             "NotFound",
	KindMethodNotAllowed:     "MethodNotAllowed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status returns the HTTP status code reported for the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindAuthenticationFailed, KindProjectNotFound, KindPanelistNotFound, KindNotFound:
		return http.StatusNotFound
	case KindNotAdmin, KindAlreadyVoted, KindAlreadyApproved, KindNotApproved,
		KindDuplicateSlug, KindTooManyFavorites, KindIncompleteBallot:
		return http.StatusForbidden
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindSyncFailed:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a caller-facing message.
// Err holds the underlying cause, if any, and is never shown to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrAlreadyVoted) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "Missing Authorization header token"}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed, Message: "Failed to authenticate"}
	ErrNotAdmin             = &Error{Kind: KindNotAdmin, Message: "Only administrators can perform this action"}
	ErrAlreadyVoted         = &Error{Kind: KindAlreadyVoted, Message: "Votes can not be modified after ballot submission"}
	ErrAlreadyApproved      = &Error{Kind: KindAlreadyApproved, Message: "You already approved this project"}
	ErrNotApproved          = &Error{Kind: KindNotApproved, Message: "You have not approved this project"}
	ErrProjectNotFound      = &Error{Kind: KindProjectNotFound, Message: "Project does not exist"}
	ErrPanelistNotFound     = &Error{Kind: KindPanelistNotFound, Message: "Panelist does not exist"}
	ErrDuplicateSlug        = &Error{Kind: KindDuplicateSlug, Message: "Panelists can not repeat projects in their favorites"}
	ErrTooManyFavorites     = &Error{Kind: KindTooManyFavorites, Message: fmt.Sprintf("Panelists can select at most %d favorites", MaxFavorites)}
	ErrIncompleteBallot     = &Error{Kind: KindIncompleteBallot, Message: fmt.Sprintf("A ballot must contain exactly %d distinct favorites", MaxFavorites)}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest, Message: "Invalid request"}
	ErrSyncFailed           = &Error{Kind: KindSyncFailed, Message: "Failed to fetch the project catalog"}
	ErrPersistenceFailed    = &Error{Kind: KindPersistenceFailed, Message: "Failed to persist changes"}
	ErrUnavailable          = &Error{Kind: KindUnavailable, Message: "Voting data is not available yet, try again"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "Not Found"}
	ErrMethodNotAllowed     = &Error{Kind: KindMethodNotAllowed, Message: "Method not allowed"}
)

// newError builds an error of kind with a specific message and cause.
func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// withCause copies a sentinel and attaches cause.
func withCause(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// InvalidRequest returns a KindInvalidRequest error with message.
func InvalidRequest(message string) *Error {
	return newError(KindInvalidRequest, message, nil)
}

// AsError converts any error into an *Error. Unclassified errors become KindInternal
// with a generic message so causes never leak to callers.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return newError(KindInternal, "Internal server error", err)
}

// KindOf returns the kind of err, or KindInternal if it is not classified.
func KindOf(err error) Kind {
	return AsError(err).Kind
}
