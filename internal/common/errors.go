package common

import "fmt"

// InvalidInputError is returned when a request carries no target at all.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" {
		return "no request target provided"
	}
	return "no request target provided: " + e.Reason
}

// InvalidURLError is returned when the request target cannot be resolved
// against the document location.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request URL %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("invalid request URL %q", e.URL)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// PayloadParseError is returned when a paint request body is not a JSON object.
type PayloadParseError struct {
	Err error
}

func (e *PayloadParseError) Error() string {
	if e.Err != nil {
		return "paint payload is not a JSON object: " + e.Err.Error()
	}
	return "paint payload is not a JSON object"
}

func (e *PayloadParseError) Unwrap() error { return e.Err }

// ProviderUnavailableError is returned when the placement provider cannot be
// reached or answers with something that is not a placement map.
type ProviderUnavailableError struct {
	URL string
	Err error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("placement provider %s unavailable: %v", e.URL, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// IndexError is returned when the placement map has no entry for the
// requested row/column.
type IndexError struct {
	Row string
	Col string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("no placement data for row %q col %q", e.Row, e.Col)
}
