// Package redirect captures the process-wide standard output and error
// streams into files for a bounded scope.
//
// Collaborators such as the transpiler and the native compiler write straight
// to the inherited descriptors 1 and 2, so capture happens at the descriptor
// level where the platform allows it. Every Acquire must be paired with
// exactly one Restore; nested scopes restore in reverse order.
package redirect

import (
	"errors"
	"fmt"
	"os"
)

// Scope is one active redirection. The zero value is not usable.
type Scope struct {
	restore  func() error
	restored bool
}

// Acquire points the process stdout and stderr at the given files until
// Restore is called.
func Acquire(stdout, stderr *os.File) (*Scope, error) {
	if stdout == nil || stderr == nil {
		return nil, errors.New("redirect: stdout and stderr files are required")
	}
	restore, err := redirect(stdout, stderr)
	if err != nil {
		return nil, fmt.Errorf("redirect: %w", err)
	}
	return &Scope{restore: restore}, nil
}

// Restore puts back the streams saved by Acquire. Calling it more than once
// is a no-op.
func (s *Scope) Restore() error {
	if s == nil || s.restored {
		return nil
	}
	s.restored = true
	if err := s.restore(); err != nil {
		return fmt.Errorf("redirect: restore: %w", err)
	}
	return nil
}
