package domain

import "errors"

// Error taxonomy. Every failure in the pool/matching core is handled at the
// layer that detects it; these sentinels classify what recovery applies.
var (
	// ErrConfiguration marks malformed credentials or an unknown vendor.
	// Fatal to the affected component, never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidOrder marks a trade request that failed category
	// validation. The order is dropped and logged, processing continues.
	ErrInvalidOrder = errors.New("invalid order request")

	// ErrTransport marks a socket failure or closed session. Triggers the
	// owning connection's bounded reconnect path.
	ErrTransport = errors.New("transport failure")

	// ErrDispatch marks a subscription dispatch rejected by an open
	// circuit breaker. Connection state is untouched; callers may retry.
	ErrDispatch = errors.New("dispatch rejected")

	// ErrProtocol marks an unrecognized or truncated inbound frame. Logged
	// and ignored without affecting connection state.
	ErrProtocol = errors.New("protocol violation")
)
