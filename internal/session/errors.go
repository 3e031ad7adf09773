package session

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations on a closed session.
var ErrNotConnected = errors.New("not connected")

// ConnectionError indicates that the transport could not be opened or
// the server rejected the login. The session is unusable; callers must
// connect again.
type ConnectionError struct {
	Addr  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// ProtocolError indicates that a single request within an open session
// failed. The session itself may still be usable.
type ProtocolError struct {
	Op     string
	Folder string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Folder != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Folder, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// IsProtocolError reports whether err (or any error in its chain) is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
