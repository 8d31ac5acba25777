//go:build linux

package serial

import "golang.org/x/sys/unix"

// Termios ioctl request numbers for Linux.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
	ioctlTCFlush    = unix.TCFLSH
	ioctlTCSBrk     = unix.TCSBRK
)
