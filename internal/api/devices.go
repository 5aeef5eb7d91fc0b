package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camrelay/internal/camera"
	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/device"
)

// statusProvider is implemented by the device types; the fleet hands out
// the narrower device.Device.
type statusProvider interface {
	Status() map[string]any
}

func deviceData(d device.Device) DeviceData {
	data := DeviceData{
		Name: d.Name(),
		ID:   d.ID(),
		Kind: d.Kind(),
	}
	if sp, ok := d.(statusProvider); ok {
		data.Status = sp.Status()
	}
	if cam, ok := d.(*camera.Camera); ok {
		view := cam.View()
		data.Camera = &view
	}
	return data
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List devices",
		Description: "List the cameras and base stations of the current vendor session",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*DeviceListResponse, error) {
		resp := &DeviceListResponse{}
		resp.Body.Devices = []DeviceData{}
		for _, d := range s.fleet.Devices() {
			resp.Body.Devices = append(resp.Body.Devices, deviceData(d))
		}
		resp.Body.Count = len(resp.Body.Devices)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{name}",
		Summary:     "Get device",
		Description: "Get the status of one device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *DeviceInput) (*DeviceResponse, error) {
		d, err := s.fleet.Device(input.Name)
		if err != nil {
			return nil, huma.Error404NotFound("Device not found", err)
		}
		return &DeviceResponse{Body: deviceData(d)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "control-device",
		Method:        http.MethodPost,
		Path:          "/api/devices/{name}/control",
		Summary:       "Control device",
		Description:   "Send the same payload as the NATS control subject",
		Tags:          []string{"devices"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404, 422},
	}, func(ctx context.Context, input *ControlInput) (*ControlResponse, error) {
		err := s.fleet.Control(ctx, input.Name, input.Body.Payload)
		switch {
		case errors.Is(err, cloud.ErrUnknownDevice):
			return nil, huma.Error404NotFound("Device not found", err)
		case errors.Is(err, device.ErrInvalidControl):
			return nil, huma.Error422UnprocessableEntity("Invalid control payload", err)
		case err != nil:
			return nil, huma.Error500InternalServerError("Control failed", err)
		}
		resp := &ControlResponse{}
		resp.Body.Accepted = true
		resp.Body.Device = input.Name
		return resp, nil
	})
}
