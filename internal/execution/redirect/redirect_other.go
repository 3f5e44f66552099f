//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package redirect

import "os"

// Without dup2 only Go writers see the redirection; child processes get the
// files through the exec collaborators, which read os.Stdout at start time.
func redirect(stdout, stderr *os.File) (func() error, error) {
	prevOut, prevErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = stdout, stderr
	return func() error {
		os.Stdout, os.Stderr = prevOut, prevErr
		return nil
	}, nil
}
