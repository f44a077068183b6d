package airzone

import "errors"

// Failure taxonomy for the local controller conversation. All errors returned
// by the client wrap exactly one of these sentinels so callers can classify
// failures with errors.Is without parsing messages.
var (
	// ErrTransport covers network-level failures: connection refused, DNS,
	// timeouts, and non-2xx HTTP statuses.
	ErrTransport = errors.New("airzone: transport failure")

	// ErrProtocol covers responses that arrived but were not the expected
	// shape: malformed JSON or a missing data array.
	ErrProtocol = errors.New("airzone: unexpected controller response")

	// ErrInvalidZone is returned for zone indices outside the bounds of the
	// current snapshot.
	ErrInvalidZone = errors.New("airzone: zone index out of range")
)
