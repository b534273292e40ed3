package mailbox

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the IMAP server could not be reached or the
// login was rejected. It is transient: the cycle retries it a bounded
// number of times and gives up until the next scheduled poll.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox connection: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// FetchError indicates a single message could not be fetched. It aborts
// only that message, not the batch.
type FetchError struct {
	UID uint32
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching message uid %d: %v", e.UID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates a fetched message could not be decoded. The message
// is recorded as failed and the batch continues.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
