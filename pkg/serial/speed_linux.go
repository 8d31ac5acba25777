//go:build linux

package serial

import "golang.org/x/sys/unix"

// setSpeed writes the baud rate into a Linux termios struct.
func setSpeed(termios *unix.Termios, speed uint32) {
	termios.Ispeed = speed
	termios.Ospeed = speed
}
