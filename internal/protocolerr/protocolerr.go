// Package protocolerr defines the sentinel errors every component uses to
// classify failures into the wire-level error taxonomy: protocol, auth,
// resource, not-found, transfer, and transport errors. Dispatch code
// converts these to an "error" control message via Reason, never leaking
// Go error text to a client.
package protocolerr

import "errors"

var (
	// ErrNameEmpty is an AuthError: login with a blank username.
	ErrNameEmpty = errors.New("name empty")
	// ErrFrameTooLarge is a ProtocolError that closes the session.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformed is a ProtocolError that does not close the session.
	ErrMalformed = errors.New("malformed")
	// ErrUnknownType is a ProtocolError for an unrecognized message type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrSizeLimit is a ResourceError: declared file size exceeds the cap.
	ErrSizeLimit = errors.New("size exceeds limit")
	// ErrBadFilename is a ResourceError: filename sanitizes to empty.
	ErrBadFilename = errors.New("invalid filename")
	// ErrNoPort is a ResourceError: no ephemeral listener could be bound.
	ErrNoPort = errors.New("no ephemeral port available")
	// ErrUnknownFID is a NotFound error: fid not registered.
	ErrUnknownFID = errors.New("unknown file id")
	// ErrNotAvailable is a NotFound error: fid known but not yet available.
	ErrNotAvailable = errors.New("file not available")
	// ErrUnknownTarget is a NotFound error: unicast target_uid not registered.
	ErrUnknownTarget = errors.New("unknown target")
)

// Reason maps a sentinel error to the wire-level "reason" string sent back
// in an error control message. Unrecognized errors map to "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNameEmpty):
		return "name empty"
	case errors.Is(err, ErrFrameTooLarge):
		return "frame too large"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnknownType):
		return "unknown message type"
	case errors.Is(err, ErrSizeLimit):
		return "size exceeds limit"
	case errors.Is(err, ErrBadFilename):
		return "invalid filename"
	case errors.Is(err, ErrNoPort):
		return "no ephemeral port available"
	case errors.Is(err, ErrUnknownFID):
		return "unknown file id"
	case errors.Is(err, ErrNotAvailable):
		return "file not available"
	case errors.Is(err, ErrUnknownTarget):
		return "unknown target"
	default:
		return "internal"
	}
}
