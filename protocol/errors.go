package protocol

import "errors"

var (
	// ErrTransport is returned when dialing, reading or writing the socket
	// fails, or the server closes the stream. The connection is gone.
	ErrTransport = errors.New("transport error")

	// ErrProtocolViolation is returned when a frame is malformed or is not the
	// kind of message the exchange expects.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrRequestFailed is returned when the server acknowledges a query with
	// a "fail" status.
	ErrRequestFailed = errors.New("request failed")

	ErrTimeout   = errors.New("timed out waiting for a message")
	ErrCancelled = errors.New("cancelled while waiting for a message")

	ErrNotConnected = errors.New("not connected")

	// ErrNoData is returned when a query succeeded but the reply had no data.
	ErrNoData = errors.New("no data found")

	ErrInvalidRoute = errors.New("invalid vendor route")
)
