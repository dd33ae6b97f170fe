package openai

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

// streamer adapts an OpenAI chat completion stream to llm.Streamer. Unlike
// Anthropic, OpenAI does not delimit tool-call content blocks explicitly:
// deltas are correlated by the provider's per-choice tool_calls index and
// only known to be complete once the stream reports a finish_reason.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.ChatCompletionChunk]

	chunks chan llm.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.ChatCompletionChunk]) llm.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		chunks: make(chan llm.Chunk, 32),
	}
	go s.run()
	return s
}

func (s *streamer) Recv() (llm.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return llm.Chunk{}, err
		}
		return llm.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return llm.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	toolCalls := map[int64]*toolBuffer{}
	flushed := false

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			} else {
				s.setErr(nil)
			}
			return
		}
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			if chunk.Usage.TotalTokens > 0 {
				if err := s.emit(llm.Chunk{
					Type: llm.ChunkTypeUsage,
					UsageDelta: &llm.TokenUsage{
						InputTokens:  int(chunk.Usage.PromptTokens),
						OutputTokens: int(chunk.Usage.CompletionTokens),
					},
				}); err != nil {
					s.setErr(err)
					return
				}
			}
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta
		if delta.Content != "" {
			if err := s.emit(llm.Chunk{Type: llm.ChunkTypeText, Text: delta.Content}); err != nil {
				s.setErr(err)
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			tb := toolCalls[idx]
			if tb == nil {
				tb = &toolBuffer{id: tc.ID, name: tc.Function.Name}
				toolCalls[idx] = tb
			}
			if tc.ID != "" {
				tb.id = tc.ID
			}
			if tc.Function.Name != "" {
				tb.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				tb.args.WriteString(tc.Function.Arguments)
				if err := s.emit(llm.Chunk{
					Type: llm.ChunkTypeToolCallDelta,
					ToolCallDelta: &llm.ToolCallDelta{
						ID:    tb.id,
						Name:  tb.name,
						Delta: tc.Function.Arguments,
					},
				}); err != nil {
					s.setErr(err)
					return
				}
			}
		}
		if choice.FinishReason != "" && !flushed {
			for _, idx := range sortedKeys(toolCalls) {
				tb := toolCalls[idx]
				if tb == nil || tb.name == "" {
					continue
				}
				if err := s.emit(llm.Chunk{
					Type: llm.ChunkTypeToolCall,
					ToolCall: &llm.ToolCall{
						ID:      tb.id,
						Name:    tb.name,
						Payload: tb.payload(),
					},
				}); err != nil {
					s.setErr(err)
					return
				}
			}
			flushed = true
			if err := s.emit(llm.Chunk{Type: llm.ChunkTypeStop, StopReason: string(choice.FinishReason)}); err != nil {
				s.setErr(err)
				return
			}
		}
	}
}

func (s *streamer) emit(chunk llm.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

type toolBuffer struct {
	id   string
	name string
	args strings.Builder
}

func (tb *toolBuffer) payload() json.RawMessage {
	trimmed := strings.TrimSpace(tb.args.String())
	if trimmed == "" {
		trimmed = "{}"
	}
	return json.RawMessage(trimmed)
}

func sortedKeys(m map[int64]*toolBuffer) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
