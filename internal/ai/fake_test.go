package ai

import (
	"context"
	"io"
	"sync"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	errs  []error
	resp  *Response
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Kind() string     { return "fake" }
func (f *fakeProvider) Models() []string { return []string{"fake-model"} }
func (f *fakeProvider) Available() bool  { return true }

func (f *fakeProvider) Chat(context.Context, Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return f.resp, nil
}

func (f *fakeProvider) ChatStream(context.Context, Request) (Stream, error) {
	return nil, Unsupported("fake", "streaming")
}

func (f *fakeProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, Unsupported("fake", "embeddings")
}

func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

type sliceStream struct {
	events []StreamEvent
	err    error
	pos    int
	closed bool
}

func (s *sliceStream) Recv() (StreamEvent, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return StreamEvent{}, s.err
	}
	return StreamEvent{}, io.EOF
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
