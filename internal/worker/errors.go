package worker

import "errors"

// terminalError marks a failure no amount of retrying will fix, such as
// a malformed payload. The worker dead-letters it immediately instead of
// burning through the attempt budget.
type terminalError struct {
	err error
}

func (t *terminalError) Error() string {
	return "terminal: " + t.err.Error()
}

func (t *terminalError) Unwrap() error {
	return t.err
}

// Terminal wraps an error so the worker treats it as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err was classified terminal by a handler.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
