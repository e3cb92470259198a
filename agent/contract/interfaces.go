package contract

import "context"

// Inference is the opaque synchronous model call. Implementations format
// prompts and sampling parameters per role; the core only inspects the
// structural shape of the completion.
type Inference interface {
	Complete(ctx context.Context, req InferenceRequest) (Completion, error)
}

// Research is the external web research collaborator. A query with no usable
// findings returns ErrNoResults so the core can fall back to a local
// knowledge summary.
type Research interface {
	Search(ctx context.Context, query string, filters map[string]string) ([]Finding, error)
}

// Sink receives ToolCallRecord and stage-transition events as an append-only
// stream. Emit must not block the conversation turn; failures are logged, not
// propagated.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}
