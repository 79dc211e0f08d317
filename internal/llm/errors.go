package llm

import "fmt"

// ProviderError is a failed provider call. Unreachable marks connection,
// auth and server-side failures as opposed to a bad response.
type ProviderError struct {
	Provider    string
	Status      int
	Unreachable bool
	Err         error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
