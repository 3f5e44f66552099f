package redirect

import "golang.org/x/sys/unix"

// dupTo makes newfd refer to oldfd. linux/arm64 has no dup2, dup3 works everywhere.
func dupTo(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup3(oldfd, newfd, 0)
}
