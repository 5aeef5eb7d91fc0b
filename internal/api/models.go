package api

import (
	"github.com/smazurov/camrelay/internal/camera"
	"github.com/smazurov/camrelay/internal/cloud"
)

// HealthData is the health check body.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Devices int    `json:"devices" example:"3" doc:"Devices in the current vendor session"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Body HealthData
}

// VersionData is the version body.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
}

// VersionResponse is the version response.
type VersionResponse struct {
	Body VersionData
}

// DeviceData describes one device.
type DeviceData struct {
	Name   string         `json:"name" example:"front_door" doc:"Normalized device name, used in topics and URLs"`
	ID     string         `json:"id" example:"A1B2C3" doc:"Vendor device id"`
	Kind   cloud.Kind     `json:"kind" example:"camera" doc:"camera or basestation"`
	Status map[string]any `json:"status" doc:"Current status fields"`
	Camera *camera.View   `json:"camera,omitempty" doc:"Camera state and pipeline, cameras only"`
}

// DeviceListResponse lists the devices.
type DeviceListResponse struct {
	Body struct {
		Devices []DeviceData `json:"devices" doc:"Devices in inventory order"`
		Count   int          `json:"count" example:"3" doc:"Number of devices"`
	}
}

// DeviceInput selects a device by name.
type DeviceInput struct {
	Name string `path:"name" example:"front_door" doc:"Device name"`
}

// DeviceResponse returns one device.
type DeviceResponse struct {
	Body DeviceData
}

// ControlInput sends a control payload to a device.
type ControlInput struct {
	Name string `path:"name" example:"front_door" doc:"Device name"`
	Body struct {
		Payload string `json:"payload" minLength:"1" example:"START" doc:"START, STOP or SNAPSHOT for cameras; JSON for base stations"`
	}
}

// ControlResponse acknowledges a control command.
type ControlResponse struct {
	Body struct {
		Accepted bool   `json:"accepted" example:"true" doc:"The command was accepted"`
		Device   string `json:"device" example:"front_door" doc:"Device name"`
	}
}
