package linkedin

import "fmt"

// AuthError means the bearer token is invalid or expired. It is fatal for
// the run and needs operator intervention; retrying it would only burn the
// platform's goodwill.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("linkedin auth failed (status %d): %s", e.Status, e.Message)
}

// TransientError is a network failure or a platform-side rejection (rate
// limit, 5xx) that is safe to retry on the next scheduled trigger.
type TransientError struct {
	Status  int
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("linkedin request failed: %v", e.Err)
	}
	return fmt.Sprintf("linkedin request failed (status %d): %s", e.Status, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }
