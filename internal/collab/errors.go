package collab

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates a collaborator call itself failed: the
// transport errored, the call timed out, or the response did not decode
// against its schema. This is distinct from the work the collaborator
// was evaluating failing; callers must never fold the two together.
var ErrUnavailable = errors.New("collaborator unavailable")

// Unavailable wraps an underlying failure as a collaborator-unavailable
// error, tagged with the role that failed.
func Unavailable(role string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, role, err)
}

// IsUnavailable reports whether err is a collaborator failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
