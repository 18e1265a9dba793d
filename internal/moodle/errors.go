package moodle

import "fmt"

// ConfigurationError signals that the caller supplied an invalid or missing
// input before any network I/O happened.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("moodle: missing %s", e.Field)
}

// TransportError signals a failed HTTP exchange: a non-2xx status, a network
// failure, or a request that timed out.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("moodle: request failed: %v", e.Err)
	}
	return fmt.Sprintf("moodle: request failed (%d): %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError signals an HTTP 200 response whose body carries a Moodle
// exception marker.
type UpstreamError struct {
	Message string
	Code    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("moodle: %s", e.Message)
	}
	return fmt.Sprintf("moodle: %s", e.Code)
}
