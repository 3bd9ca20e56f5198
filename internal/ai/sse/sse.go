package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/spigell/resume-analyzer/internal/ai"
)

const maxSSELine = 1 << 20

var doneMarker = []byte("[DONE]")

// ChunkDecoder turns one SSE data payload into stream events.
type ChunkDecoder func(data []byte) ([]ai.StreamEvent, error)

// Stream reads server-sent events and exposes them as an ai.Stream.
type Stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	provider string
	decode   ChunkDecoder
	pending  []ai.StreamEvent
	done     bool
}

// New wraps body. A data payload equal to [DONE] ends the stream.
func New(body io.ReadCloser, provider string, decode ChunkDecoder) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxSSELine)
	return &Stream{body: body, scanner: scanner, provider: provider, decode: decode}
}

func (s *Stream) Recv() (ai.StreamEvent, error) {
	for len(s.pending) == 0 {
		if s.done {
			return ai.StreamEvent{}, io.EOF
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return ai.StreamEvent{}, err
				}
				return ai.StreamEvent{}, ai.TransportError(s.provider, err)
			}
			continue
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, doneMarker) {
			s.done = true
			continue
		}

		events, err := s.decode(data)
		if err != nil {
			s.done = true
			return ai.StreamEvent{}, ai.TransportError(s.provider, err)
		}
		s.pending = events
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
