package messaging

import "fmt"

const (
	// ReasonUnreachable is reported when the peer does not accept the connection
	ReasonUnreachable = "could not connect to peer, is it running?"
	// ReasonWriteFailed is reported when the connection drops mid-send
	ReasonWriteFailed = "failed to deliver mail to peer"
)

// ConnectionError is returned when an outbound connect or write fails.
// It is never retried automatically.
type ConnectionError struct {
	Addr   string
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Reason, e.Addr)
	}
	return fmt.Sprintf("%s (%s): %v", e.Reason, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
