package protocol_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/Spinkelben/MarketDash/protocol"
)

// scriptedReader hands out frames in order, then fails with err.
type scriptedReader struct {
	frames []string
	err    error
	reads  int
}

func (s *scriptedReader) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	if s.reads >= len(s.frames) {
		return "", s.err
	}

	frame := s.frames[s.reads]
	s.reads++
	return frame, nil
}

var _ = Describe("Chunking", func() {
	Describe("ParseChunkCount()", func() {
		It("accepts a bare decimal integer", func() {
			n, ok := protocol.ParseChunkCount("3")
			Expect(ok).To(BeTrue())
			Expect(n).To(Equal(3))

			n, ok = protocol.ParseChunkCount(" 12\n")
			Expect(ok).To(BeTrue())
			Expect(n).To(Equal(12))
		})

		It("rejects anything else", func() {
			for _, text := range []string{"", "abc", "-3", "+3", "3a", "1.5", `{"t":"d"}`} {
				_, ok := protocol.ParseChunkCount(text)
				Expect(ok).To(BeFalse(), text)
			}
		})
	})

	Describe("ReadMessage()", func() {
		It("reassembles chunks in arrival order without a separator", func() {
			r := &scriptedReader{frames: []string{"3", "a", "b", "c"}}

			text, err := protocol.ReadMessage(context.Background(), r, time.Second)
			Expect(err).To(Succeed())
			Expect(string(text)).To(Equal("abc"))
			Expect(r.reads).To(Equal(4))
		})

		It("returns an unchunked frame as is", func() {
			r := &scriptedReader{frames: []string{`{"t":"d","d":{"b":{}}}`, "next"}}

			text, err := protocol.ReadMessage(context.Background(), r, time.Second)
			Expect(err).To(Succeed())
			Expect(string(text)).To(Equal(`{"t":"d","d":{"b":{}}}`))
			Expect(r.reads).To(Equal(1))
		})

		It("fails when the stream ends part way through the chunks", func() {
			r := &scriptedReader{frames: []string{"3", "a"}, err: protocol.ErrTransport}

			_, err := protocol.ReadMessage(context.Background(), r, time.Second)
			Expect(errors.Is(err, protocol.ErrTransport)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrPartialMessage)).To(BeTrue())
		})

		It("does not report a partial message when the count itself is not read", func() {
			r := &scriptedReader{err: protocol.ErrTimeout}

			_, err := protocol.ReadMessage(context.Background(), r, time.Second)
			Expect(errors.Is(err, protocol.ErrTimeout)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrPartialMessage)).To(BeFalse())
		})

		It("refuses absurd chunk counts", func() {
			r := &scriptedReader{frames: []string{"999999"}}

			_, err := protocol.ReadMessage(context.Background(), r, time.Second)
			Expect(errors.Is(err, protocol.ErrProtocolViolation)).To(BeTrue())
		})
	})

	Describe("ReadData()", func() {
		It("decodes a chunked data message", func() {
			r := &scriptedReader{frames: []string{"2", `{"t":"d","d":{"a":"d",`, `"b":{"p":"x","d":[1]}}}`}}

			msg, err := protocol.ReadData(context.Background(), r, time.Second)
			Expect(err).To(Succeed())
			Expect(msg.Action).To(Equal(protocol.ActionData))
			Expect(string(msg.Body.Data)).To(Equal(`[1]`))
		})

		It("fails when the message is not a data message", func() {
			r := &scriptedReader{frames: []string{`{"t":"c","d":{"t":"r","d":"host"}}`}}

			_, err := protocol.ReadData(context.Background(), r, time.Second)
			Expect(errors.Is(err, protocol.ErrProtocolViolation)).To(BeTrue())
		})
	})
})
