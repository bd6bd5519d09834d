package ignis

import "weak"

// RemovableHandle is a removal token for an event-handler registration,
// returned by [Engine.AddEventHandler].
//
// The handle references both the handler and the engine weakly: holding a
// handle keeps neither alive, so handles never create ownership cycles
// between engine, handler, and token. Once either endpoint has been
// collected, Remove becomes a silent no-op; a removal whose subject is gone
// is moot, not an error.
//
//	handle, _ := engine.AddEventHandler(ignis.EpochCompleted, printEpoch)
//	defer handle.Remove()
//
// or scoped to a single run:
//
//	_ = handle.During(func() error {
//	    _, err := engine.Run(ctx, data, opts)
//	    return err
//	})
type RemovableHandle struct {
	events  []FilteredEvent
	handler weak.Pointer[Handler]
	engine  weak.Pointer[Engine]
}

func newRemovableHandle(events []FilteredEvent, handler *Handler, engine *Engine) *RemovableHandle {
	return &RemovableHandle{
		events:  events,
		handler: weak.Make(handler),
		engine:  weak.Make(engine),
	}
}

// Remove unregisters the handler from every event this handle covers.
//
// Remove is idempotent: each removal is guarded by HasEventHandler, so
// calling it repeatedly, or after the registration was already removed by
// other means, does nothing. If the handler or the engine no longer exists
// it is a no-op as well.
func (h *RemovableHandle) Remove() {
	handler := h.handler.Value()
	engine := h.engine.Value()
	if handler == nil || engine == nil {
		return
	}
	for _, fe := range h.events {
		if engine.HasEventHandler(handler, fe) {
			// Cannot fail: presence was just checked and there is a
			// single thread of control.
			_ = engine.RemoveEventHandler(handler, fe)
		}
	}
}

// During runs fn and removes the registration when fn returns, on every
// exit path including a propagating panic.
func (h *RemovableHandle) During(fn func() error) error {
	defer h.Remove()
	return fn()
}
