package link

import (
	"io"

	"winder-go/pkg/serial"
)

// SerialDialer opens the execution protocol over a raw serial port,
// for controllers attached by USB rather than the network.
func SerialDialer(cfg serial.Config) Dialer {
	return func() (io.ReadWriteCloser, error) {
		return serial.Open(cfg)
	}
}
