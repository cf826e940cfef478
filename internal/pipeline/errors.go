package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidQuestion rejects empty questions before any stage runs.
var ErrInvalidQuestion = errors.New("question is required")

const (
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
	StageCompose    = "compose"
)

// UpstreamError reports a failed embedding, search, or generation call. It
// ends the request; the pipeline does not retry it.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
