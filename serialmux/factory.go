package serialmux

import (
	"go.bug.st/serial"
)

// NewRealSerialMux opens the sensor head's serial port at the given path
// and wraps it in a SerialMux.
func NewRealSerialMux(path string) (*SerialMux, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
