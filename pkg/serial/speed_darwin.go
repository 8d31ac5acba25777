//go:build darwin

package serial

import "golang.org/x/sys/unix"

// setSpeed writes the baud rate into a macOS termios struct.
func setSpeed(termios *unix.Termios, speed uint32) {
	termios.Ispeed = uint64(speed)
	termios.Ospeed = uint64(speed)
}
