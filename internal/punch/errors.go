package punch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWrongNetwork is returned when the WiFi gate denies the run.
var ErrWrongNetwork = errors.New("not on an expected network")

// SelectorNotFoundError reports an exhausted selector list.
type SelectorNotFoundError struct {
	Purpose    string
	Candidates []string
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("no visible %s among %d selectors [%s]", e.Purpose, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// LoginFailureError reports that the portal still shows its login page.
type LoginFailureError struct {
	URL    string
	Reason string
	Err    error
}

func (e *LoginFailureError) Error() string {
	msg := "login failed: " + e.Reason
	if e.URL != "" {
		msg += " (at " + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoginFailureError) Unwrap() error { return e.Err }

// IsSelectorNotFound reports whether err carries a SelectorNotFoundError.
func IsSelectorNotFound(err error) bool {
	var target *SelectorNotFoundError
	return errors.As(err, &target)
}

// IsLoginFailure reports whether err carries a LoginFailureError.
func IsLoginFailure(err error) bool {
	var target *LoginFailureError
	return errors.As(err, &target)
}
