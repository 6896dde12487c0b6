// Package llm defines the boundary to the model provider. The transport
// and streaming client live outside this codebase; docchat only depends on
// this interface and the storage layer hands it message history plus a
// document context string.
package llm

import (
	"context"

	"docchat/internal/storage"
)

// Chunk is one streamed fragment of a model response.
type Chunk struct {
	Text string
	Err  error
}

// Client is the black-box model client.
type Client interface {
	// Complete returns the full response text for the given history and
	// document context.
	Complete(ctx context.Context, messages []storage.Message, contextStr string) (string, error)

	// Stream returns response text as chunks. The channel is closed when
	// the response ends; a Chunk with a non-nil Err terminates the stream.
	// Storage writes triggered by a streamed response are not cancellable
	// through this interface; they run to completion or fail independently.
	Stream(ctx context.Context, messages []storage.Message, contextStr string) (<-chan Chunk, error)
}
