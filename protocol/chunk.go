package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxChunks bounds the chunk count a server may announce.
const MaxChunks = 1 << 16

// ErrPartialMessage is returned when a chunked message could not be read in
// full. The rest of its chunks may still arrive, so the stream is no longer
// aligned on message boundaries.
var ErrPartialMessage = errors.New("partial chunked message")

// FrameReader returns the text of the next frame received on a connection.
type FrameReader interface {
	Receive(ctx context.Context, timeout time.Duration) (string, error)
}

// ParseChunkCount reports whether text is a chunk count announcement, i.e. a
// bare non-negative decimal integer, and returns the count.
func ParseChunkCount(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] < '0' || text[0] > '9' {
		return 0, false
	}

	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, false
	}

	return int(n), true
}

// ReadMessage reads the next logical frame from r. When the first frame
// announces a chunk count, that many frames are read and concatenated in
// arrival order.
func ReadMessage(ctx context.Context, r FrameReader, timeout time.Duration) ([]byte, error) {
	first, err := r.Receive(ctx, timeout)
	if err != nil {
		return nil, err
	}

	n, ok := ParseChunkCount(first)
	if !ok {
		return []byte(first), nil
	}

	if n > MaxChunks {
		return nil, violation("announced %d chunks, the limit is %d", n, MaxChunks)
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		chunk, err := r.Receive(ctx, timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read chunk %d of %d: %w", ErrPartialMessage, i+1, n, err)
		}

		b.WriteString(chunk)
	}

	return []byte(b.String()), nil
}

// ReadData reads and decodes the next logical frame, which must be a data
// message.
func ReadData(ctx context.Context, r FrameReader, timeout time.Duration) (DataMessage, error) {
	text, err := ReadMessage(ctx, r, timeout)
	if err != nil {
		return DataMessage{}, err
	}

	env, err := Unmarshal(text)
	if err != nil {
		return DataMessage{}, err
	}

	msg, ok := env.Data()
	if !ok {
		return DataMessage{}, violation("expected a data message, got kind '%s'", env.Kind())
	}

	return msg, nil
}
