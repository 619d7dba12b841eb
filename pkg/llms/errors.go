package llms

import "fmt"

// retriableStatus is the set of transport statuses worth retrying.
var retriableStatus = map[int]bool{
	408: true,
	409: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// ProviderError is the normalized transport error surfaced by every
// provider.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Retriable  bool
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// IsRetriable reports whether the reliability manager should retry.
func (e *ProviderError) IsRetriable() bool {
	return e.Retriable
}

// NewProviderError normalizes a transport failure. Retriability follows
// the status code set {408, 409, 429, 500, 502, 503, 504}.
func NewProviderError(statusCode int, code, message string) *ProviderError {
	return &ProviderError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Retriable:  retriableStatus[statusCode],
	}
}
