package provider

import "fmt"

// TransportError indicates the remote call could not complete: network
// failure, timeout, or a non-success response code. The attempt may succeed
// if retried by the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidResponseError indicates the remote call completed but the payload
// failed the completeness check. Distinguished from TransportError so callers
// can present a different message.
type InvalidResponseError struct {
	Missing string
	Detail  string
}

func (e *InvalidResponseError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("invalid provider response: missing %s", e.Missing)
	}
	return fmt.Sprintf("invalid provider response: %s", e.Detail)
}
