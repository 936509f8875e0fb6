package engine

import "fmt"

// Error is a usage error raised before any SQL reaches the database.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors sharing the same code, so callers can test against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidQuery          = &Error{Code: "INVALID_QUERY", Message: "invalid query"}
	ErrInvalidArgument       = &Error{Code: "INVALID_ARGUMENT", Message: "invalid argument"}
	ErrUnknownModel          = &Error{Code: "UNKNOWN_MODEL", Message: "unknown model"}
	ErrTransactionInProgress = &Error{Code: "TRANSACTION_IN_PROGRESS", Message: "transaction already in progress"}
)

func invalidQuery(format string, args ...any) *Error {
	return &Error{Code: ErrInvalidQuery.Code, Message: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Code: ErrInvalidArgument.Code, Message: fmt.Sprintf(format, args...)}
}

func unknownModel(table string) *Error {
	return &Error{Code: ErrUnknownModel.Code, Message: fmt.Sprintf("unknown model table: %s", table)}
}
