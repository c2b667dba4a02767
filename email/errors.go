package email

import "fmt"

const sendErrorMsg = "failed to send email"

// SendError is the only error a Service returns. Whatever failed (building
// the message, connecting, AUTH, the relay rejecting it, the deadline) is in
// Cause.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	if e.Cause == nil {
		return sendErrorMsg
	}
	return fmt.Sprintf("%s: %v", sendErrorMsg, e.Cause)
}

// Unwrap lets errors.Is and errors.As reach the cause.
func (e *SendError) Unwrap() error {
	return e.Cause
}
