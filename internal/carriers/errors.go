package carriers

import "errors"

var (
	// ErrNotConfigured means an endpoint URL or credential required by the operation is missing
	ErrNotConfigured = errors.New("courier operation not configured")

	// ErrNoToken means no valid bearer token could be obtained
	ErrNoToken = errors.New("no valid courier token")

	// ErrUnauthorized means the partner rejected the credentials or token
	ErrUnauthorized = errors.New("courier authentication failed")

	// ErrPartnerRejected means the partner answered with an explicit failure
	ErrPartnerRejected = errors.New("courier rejected the request")

	// ErrInvalidResponse means the partner response could not be used
	ErrInvalidResponse = errors.New("invalid courier response")

	// ErrNoTrackingData means the tracking payload had no usable events
	ErrNoTrackingData = errors.New("no tracking data")
)
