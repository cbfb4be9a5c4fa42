// Package serialmux multiplexes a line-oriented serial port carrying
// measurement frames from the sensor head: multiple clients can subscribe
// to incoming lines and send configuration commands to the single device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// Interface is the surface consumed by the service wiring; both the real
// port mux and the mock used in dev mode implement it.
type Interface interface {
	// Subscribe creates a channel receiving each line read from the port.
	// The returned ID identifies the channel for Unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes a command line to the port.
	SendCommand(string) error
	// Monitor reads lines from the port and fans them out to subscribers
	// until the context is cancelled or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
}

// SerialMux fans lines read from one serial port out to any number of
// subscribers.
type SerialMux struct {
	port SerialPorter

	subscriberMu sync.Mutex
	subscribers  map[string]chan string

	commandMu sync.Mutex

	closingMu sync.Mutex
	closing   bool
}

// NewSerialMux wraps an already-open port.
func NewSerialMux(port SerialPorter) *SerialMux {
	return &SerialMux{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends a command to the serial port, appending the newline
// terminator the device expects.
func (s *SerialMux) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the serial port and sends them to subscribers.
func (s *SerialMux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop
	// can await both lines and context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// Port drained: EOF on a mock, device unplugged on real
				// hardware.
				return scan.Err()
			}
			s.broadcast(line)
		}
	}
}

// broadcast delivers one line to every current subscriber.
func (s *SerialMux) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		ch <- line
	}
}

// Close closes all subscribed channels and the underlying port. Safe to
// call more than once.
func (s *SerialMux) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	return s.port.Close()
}
