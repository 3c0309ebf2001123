package mcp

import "errors"

// InvokeError describes a failed tool invocation. The message is what gets
// recorded in the step result, so it carries the user-facing wording.
type InvokeError struct {
	Tool      string
	Message   string
	Timeout   bool
	Transport bool // transport-level failure (connection, session)
}

func (e *InvokeError) Error() string { return e.Message }

// Recoverable reports whether retrying the call could help. Timeouts and
// transport failures are worth retrying; a tool that ran and reported an
// error is not.
func (e *InvokeError) Recoverable() bool { return e.Timeout || e.Transport }

// IsTimeout reports whether err is a tool invocation timeout.
func IsTimeout(err error) bool {
	var invokeErr *InvokeError
	return errors.As(err, &invokeErr) && invokeErr.Timeout
}

// IsRecoverable reports whether err is a tool invocation failure worth
// retrying.
func IsRecoverable(err error) bool {
	var invokeErr *InvokeError
	return errors.As(err, &invokeErr) && invokeErr.Recoverable()
}
