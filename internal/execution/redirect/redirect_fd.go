//go:build linux || darwin || freebsd || netbsd || openbsd

package redirect

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func redirect(stdout, stderr *os.File) (func() error, error) {
	savedOut, err := unix.Dup(unix.Stdout)
	if err != nil {
		return nil, err
	}
	savedErr, err := unix.Dup(unix.Stderr)
	if err != nil {
		_ = unix.Close(savedOut)
		return nil, err
	}

	if err := dupTo(int(stdout.Fd()), unix.Stdout); err != nil {
		_ = unix.Close(savedOut)
		_ = unix.Close(savedErr)
		return nil, err
	}
	if err := dupTo(int(stderr.Fd()), unix.Stderr); err != nil {
		_ = dupTo(savedOut, unix.Stdout)
		_ = unix.Close(savedOut)
		_ = unix.Close(savedErr)
		return nil, err
	}

	return func() error {
		var errs []error
		if err := dupTo(savedOut, unix.Stdout); err != nil {
			errs = append(errs, err)
		}
		if err := dupTo(savedErr, unix.Stderr); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, unix.Close(savedOut), unix.Close(savedErr))
		return errors.Join(errs...)
	}, nil
}
