package ai

import (
	"errors"
	"io"
	"iter"
	"strings"
	"sync/atomic"
)

const (
	ReasoningHeader = "> **Thinking Process:**\n> "
	AnswerSeparator = "\n\n---\n\n"

	reasoningIndent = "\n> "
)

// ErrStreamConsumed is yielded when a normalized stream is ranged over twice.
var ErrStreamConsumed = errors.New("stream already consumed")

type normalizerState int

const (
	stateStart normalizerState = iota
	stateReasoning
	stateAnswer
)

// Normalizer turns interleaved reasoning and answer events into one ordered
// transcript. It only annotates transitions and never reorders events.
type Normalizer struct {
	state normalizerState
}

// Feed returns the chunks to emit for ev, in order.
func (n *Normalizer) Feed(ev StreamEvent) []string {
	switch ev.Kind {
	case EventReasoning:
		text := strings.ReplaceAll(ev.Text, "\n", reasoningIndent)
		if n.state != stateReasoning {
			n.state = stateReasoning
			return nonEmpty(ReasoningHeader, text)
		}
		return nonEmpty(text)
	default:
		if n.state == stateReasoning {
			n.state = stateAnswer
			return nonEmpty(AnswerSeparator, ev.Text)
		}
		n.state = stateAnswer
		return nonEmpty(ev.Text)
	}
}

// AnswerOnly returns the portion of a normalized transcript after the last
// reasoning block.
func AnswerOnly(transcript string) string {
	if idx := strings.LastIndex(transcript, AnswerSeparator); idx >= 0 {
		return transcript[idx+len(AnswerSeparator):]
	}
	if strings.HasPrefix(transcript, ReasoningHeader) {
		return ""
	}
	return transcript
}

func nonEmpty(chunks ...string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Normalize adapts a provider stream into a single-pass sequence of text
// chunks. A transport error is yielded after the chunks already produced.
// The stream is closed when the sequence ends or the consumer stops early.
func Normalize(stream Stream) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		defer stream.Close()

		var n Normalizer
		for {
			ev, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			for _, chunk := range n.Feed(ev) {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}
