// Package relay forwards a provider token stream to an outbound event sink,
// preserving arrival order.
package relay

import (
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
)

// Sink receives the outbound events produced by one forwarded stream. End is
// called exactly once after the last chunk and only when the upstream
// completed; an upstream failure is reported through Fail instead.
type Sink interface {
	Chunk(text string) error
	End() error
	Fail(message string)
}

// Forward drains the stream in arrival order, emitting each non-empty
// fragment to the sink, then the terminal End. It returns the concatenated
// message so the caller can extend its dialogue history.
//
// If the upstream fails mid-stream, Fail is invoked and End is not. If the
// sink rejects a write (connection already gone), forwarding stops without a
// terminal signal; the upstream call is left to run out on its own.
func Forward(stream *schema.StreamReader[*schema.Message], sink Sink) (*schema.Message, error) {
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			sink.Fail(fmt.Sprintf("ai stream failed: %v", recvErr))
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		if err := sink.Chunk(chunk.Content); err != nil {
			return nil, fmt.Errorf("sink rejected chunk: %w", err)
		}
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		sink.Fail(fmt.Sprintf("concat ai chunks failed: %v", err))
		return nil, err
	}

	if err := sink.End(); err != nil {
		return merged, fmt.Errorf("sink rejected end: %w", err)
	}

	return merged, nil
}
