package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camrelay/internal/events"
)

// forward returns a bus handler that hands events to ch without blocking;
// a slow SSE client loses events rather than stalling the bus.
func forward[T any](ch chan<- any) func(T) {
	return func(e T) {
		select {
		case ch <- e:
		default:
		}
	}
}

// registerSSERoutes registers the event stream. Pictures are not sent;
// they are available on NATS.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time status, motion, state and process crash events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":          events.StatusEvent{},
		"motion":          events.MotionEvent{},
		"state-changed":   events.StateChangedEvent{},
		"process-crashed": events.ProcessCrashedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			s.bus.Subscribe(forward[events.StatusEvent](eventCh)),
			s.bus.Subscribe(forward[events.MotionEvent](eventCh)),
			s.bus.Subscribe(forward[events.StateChangedEvent](eventCh)),
			s.bus.Subscribe(forward[events.ProcessCrashedEvent](eventCh)),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
