// Package metrics provides Prometheus metrics for cameras and their
// ffmpeg pipelines.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Camera states reported by the state gauge.
var cameraStates = []string{"idle", "connecting", "streaming"}

var (
	cameraState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camrelay",
		Subsystem: "camera",
		Name:      "state",
		Help:      "1 for the camera's current state, 0 otherwise",
	}, []string{"camera", "state"})

	cameraTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camrelay",
		Subsystem: "camera",
		Name:      "transitions_total",
		Help:      "Accepted state transitions",
	}, []string{"camera", "to"})

	processRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camrelay",
		Name:      "process_restarts_total",
		Help:      "Unexpected ffmpeg exits followed by a restart",
	}, []string{"camera", "process"})

	picturesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camrelay",
		Name:      "pictures_dropped_total",
		Help:      "Snapshots dropped because the picture queue was full",
	}, []string{"camera"})

	// Local cache for the API.
	cache   = make(map[string]*CameraMetrics)
	cacheMu sync.RWMutex
)

// CameraMetrics holds current metric values for a camera.
type CameraMetrics struct {
	State           string  `json:"state"`
	Transitions     float64 `json:"transitions"`
	Restarts        float64 `json:"process_restarts"`
	PicturesDropped float64 `json:"pictures_dropped"`
}

// SetCameraState marks state as the current one and counts the transition.
func SetCameraState(camera, state string) {
	for _, s := range cameraStates {
		v := 0.0
		if s == state {
			v = 1
		}
		cameraState.WithLabelValues(camera, s).Set(v)
	}
	cameraTransitions.WithLabelValues(camera, state).Inc()
	updateCache(camera, func(m *CameraMetrics) {
		m.State = state
		m.Transitions++
	})
}

// IncProcessRestart counts an unexpected exit of process ("proxy" or "idle").
func IncProcessRestart(camera, process string) {
	processRestarts.WithLabelValues(camera, process).Inc()
	updateCache(camera, func(m *CameraMetrics) { m.Restarts++ })
}

// IncPicturesDropped counts a snapshot dropped on a full queue.
func IncPicturesDropped(camera string) {
	picturesDropped.WithLabelValues(camera).Inc()
	updateCache(camera, func(m *CameraMetrics) { m.PicturesDropped++ })
}

// DeleteCamera removes all metrics for a camera.
func DeleteCamera(camera string) {
	for _, s := range cameraStates {
		cameraState.DeleteLabelValues(camera, s)
		cameraTransitions.DeleteLabelValues(camera, s)
	}
	processRestarts.DeletePartialMatch(prometheus.Labels{"camera": camera})
	picturesDropped.DeleteLabelValues(camera)

	cacheMu.Lock()
	delete(cache, camera)
	cacheMu.Unlock()
}

// GetCamera returns current metric values for a camera.
func GetCamera(camera string) *CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[camera]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func updateCache(camera string, update func(*CameraMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[camera]
	if !ok {
		m = &CameraMetrics{}
		cache[camera] = m
	}
	update(m)
}
