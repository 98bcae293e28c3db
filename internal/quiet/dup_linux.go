package quiet

import "golang.org/x/sys/unix"

// Some linux ports (arm64, riscv64) have no dup2 syscall.
func dup2(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
