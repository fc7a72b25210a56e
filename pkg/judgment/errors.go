package judgment

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable covers unknown providers and transport or auth failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrTimeout is returned when a single call exceeds the per-call timeout.
	ErrTimeout = errors.New("judgment timed out")
	// ErrInvalidJudgment is returned when a reply cannot be coerced to the declared type.
	ErrInvalidJudgment = errors.New("invalid judgment")
)

// Error is returned once a judgment request has permanently failed.
type Error struct {
	Provider string
	Attempts int
	Err      error // last classified error
}

func (e *Error) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("judgment from %q: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("judgment from %q failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is one of the classified judgment failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrInvalidJudgment)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJudgment, fmt.Sprintf(format, args...))
}
