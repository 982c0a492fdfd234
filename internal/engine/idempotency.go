package engine

import (
	"context"
	"encoding/json"
)

// withIdempotency short-circuits a replay of the same (projectID,
// correlationID) pair to the first attempt's recorded outcome, mirroring
// the teacher's WithTx transactional helper. A blank correlationID always
// executes fn.
func withIdempotency[T any](ctx context.Context, e *Engine, projectID, correlationID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if correlationID == "" {
		return fn(ctx)
	}
	if raw, ok, err := e.Store.GetIdempotentOutcome(ctx, projectID, correlationID); err != nil {
		return zero, err
	} else if ok {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, err
		}
		return out, nil
	}
	out, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return zero, err
	}
	if err := e.Store.PutIdempotentOutcome(ctx, projectID, correlationID, raw); err != nil {
		return zero, err
	}
	return out, nil
}
