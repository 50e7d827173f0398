// Error taxonomy for the dedicated-server control protocol.
// These are the only failure kinds the connection layer ever surfaces;
// everything above it branches on Kind, never on error text.

package errors

import "errors"

type ConnErrorKind string

const (
	KindConnectionTimeout    ConnErrorKind = "ConnectionTimeout"
	KindConnectionRefused    ConnErrorKind = "ConnectionRefused"
	KindAuthenticationFailed ConnErrorKind = "AuthenticationFailed"
	KindRequestTimeout       ConnErrorKind = "RequestTimeout"
	KindRemoteFault          ConnErrorKind = "RemoteFault"
	KindConnectionClosed     ConnErrorKind = "ConnectionClosed"
)

// ConnError classifies a failure on a control connection.
type ConnError struct {
	Kind    ConnErrorKind
	Message string
	// Code carries the remote fault code, only set for KindRemoteFault.
	Code int
}

func (e *ConnError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ConnectionTimeout reports that the control socket could not be opened in time.
func ConnectionTimeout(msg string) error {
	return &ConnError{Kind: KindConnectionTimeout, Message: msg}
}

// ConnectionRefused reports that the remote actively refused the socket.
func ConnectionRefused(msg string) error {
	return &ConnError{Kind: KindConnectionRefused, Message: msg}
}

// AuthenticationFailed reports that the server rejected our credentials.
func AuthenticationFailed(msg string) error {
	return &ConnError{Kind: KindAuthenticationFailed, Message: msg}
}

// RequestTimeout reports that no response arrived within the per-call window.
func RequestTimeout(msg string) error {
	return &ConnError{Kind: KindRequestTimeout, Message: msg}
}

// RemoteFault reports a protocol-level error returned by the server.
// msg must already be unwrapped from its transport envelope, callers of the
// connection layer never see the wrapper text.
func RemoteFault(code int, msg string) error {
	return &ConnError{Kind: KindRemoteFault, Message: msg, Code: code}
}

// ConnectionClosed cancels in-flight work when a connection is torn down.
func ConnectionClosed(msg string) error {
	if msg == "" {
		msg = "connection closed"
	}
	return &ConnError{Kind: KindConnectionClosed, Message: msg}
}

// IsKind reports whether err (or anything it wraps) is a ConnError of the
// given kind.
func IsKind(err error, kind ConnErrorKind) bool {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// IsConnError reports whether err is any control-connection failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
