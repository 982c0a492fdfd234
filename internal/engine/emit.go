package engine

import "context"

// emit appends an event inside the caller's WithLock scope and fans it out
// on the hub, mirroring the emit helper every component package carries.
func (e *Engine) emit(ctx context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) error {
	ev, err := e.Store.Append(ctx, projectID, entityType, entityID, eventType, payload, correlationID)
	if err != nil {
		return err
	}
	if e.Hub != nil {
		e.Hub.Publish(ev)
	}
	return nil
}
