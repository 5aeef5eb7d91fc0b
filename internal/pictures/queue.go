// Package pictures carries snapshot images from a camera to subscribers.
package pictures

import (
	"context"
	"sync/atomic"

	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics"
)

// DefaultSize is the queue capacity used when none is configured.
const DefaultSize = 10

// Picture is one snapshot from a named camera.
type Picture struct {
	Camera string
	Data   []byte
}

// Queue is a bounded FIFO of snapshots for one camera. Put never blocks:
// on a full queue the new picture is dropped, and nothing is kept until
// someone listens.
type Queue struct {
	camera    string
	ch        chan []byte
	listening atomic.Bool
	logger    logging.Logger
}

// NewQueue creates a queue holding up to size pictures.
func NewQueue(camera string, size int) *Queue {
	if size < 1 {
		size = DefaultSize
	}
	return &Queue{
		camera: camera,
		ch:     make(chan []byte, size),
		logger: logging.GetLogger("camera"),
	}
}

// Put enqueues data. Reports whether it was kept.
func (q *Queue) Put(data []byte) bool {
	if !q.listening.Load() {
		return false
	}
	select {
	case q.ch <- data:
		return true
	default:
		q.logger.Info("Picture queue full, dropping snapshot", "camera", q.camera)
		metrics.IncPicturesDropped(q.camera)
		return false
	}
}

// Listening reports whether Listen has been called.
func (q *Queue) Listening() bool {
	return q.listening.Load()
}

// Len returns the number of queued pictures.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Listen marks the queue as consumed and yields pictures in enqueue order
// until ctx is canceled.
func (q *Queue) Listen(ctx context.Context) <-chan Picture {
	q.listening.Store(true)
	out := make(chan Picture)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-q.ch:
				select {
				case out <- Picture{Camera: q.camera, Data: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
