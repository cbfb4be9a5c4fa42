package serialmux

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorFansOutLines(t *testing.T) {
	t.Parallel()

	mux := NewMockSerialMux([]byte("L 1.0 2.0 100\nR 5.0 0.1 1.2 200\n"))
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	assert.Equal(t, "L 1.0 2.0 100", <-ch)
	assert.Equal(t, "R 5.0 0.1 1.2 200", <-ch)

	// Mock port EOFs after the fixture data; Monitor returns cleanly.
	require.NoError(t, <-done)
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	port := &MockSerialPort{ReadDelay: 5 * time.Millisecond, ReadData: []byte("x\n")}
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMonitorReturnsPortError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("device yanked")
	mux := NewSerialMux(&MockSerialPort{ReadError: readErr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := mux.Monitor(ctx)
	assert.ErrorContains(t, err, "device yanked")
}

func TestSendCommandAppendsNewline(t *testing.T) {
	t.Parallel()

	port := &MockSerialPort{}
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("OJ"))
	assert.Equal(t, "OJ\n", string(port.WrittenData))

	require.NoError(t, mux.SendCommand("OS\n"))
	assert.Equal(t, "OJ\nOS\n", string(port.WrittenData))
}

func TestSendCommandPropagatesWriteError(t *testing.T) {
	t.Parallel()

	mux := NewSerialMux(&MockSerialPort{WriteError: io.ErrShortWrite})
	assert.Error(t, mux.SendCommand("OJ"))
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	mux := NewMockSerialMux(nil)
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Unknown IDs are ignored.
	mux.Unsubscribe("not-a-subscriber")
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	port := &MockSerialPort{}
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())
	assert.True(t, port.Closed)

	_, open := <-ch
	assert.False(t, open)
}
