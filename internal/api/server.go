// Package api serves the operator HTTP API: health, version, device status
// and control, a server-sent event stream and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camrelay/internal/device"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/version"
)

// Fleet is what the API needs from the device fleet.
type Fleet interface {
	Devices() []device.Device
	Device(name string) (device.Device, error)
	Control(ctx context.Context, name, payload string) error
}

// Options configures the server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Fleet             Fleet
	Bus               *events.Bus
	PrometheusHandler http.Handler // optional, served on /metrics without auth
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	fleet      Fleet
	bus        *events.Bus
	logger     logging.Logger
}

// NewServer creates the server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	handlePreflight(mux)

	config := huma.DefaultConfig("camrelay API", version.String())
	config.Info.Description = "Status and control of relayed vendor cameras"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	s := &Server{
		api:    api,
		mux:    mux,
		fleet:  opts.Fleet,
		bus:    opts.Bus,
		logger: logging.GetLogger("api"),
	}

	api.UseMiddleware(cors)
	api.UseMiddleware(requestLogger(logging.GetLogger("http")))
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuth(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Stop. It returns nil after Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and every open connection, SSE streams
// included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{
			Body: HealthData{
				Status:  "ok",
				Devices: len(s.fleet.Devices()),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*VersionResponse, error) {
		info := version.Get()
		return &VersionResponse{
			Body: VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerSSERoutes()
}

func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
