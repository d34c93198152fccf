package cocoro

import (
	"strconv"

	"github.com/rsokolowski/sharp-cocoro-air/internal/echonet"
)

// Device is one controllable appliance behind a box (the home gateway).
// The (box id, device id) pair identifies it; device id alone is unique
// within an account and is used as the lookup key.
type Device struct {
	BoxID         string             `json:"box_id"`
	DeviceID      string             `json:"device_id"`
	Name          string             `json:"name"`
	Maker         string             `json:"maker"`
	Model         string             `json:"model"`
	EchonetNode   string             `json:"echonet_node"`
	EchonetObject string             `json:"echonet_object"`
	UpdatedAt     string             `json:"updated_at"`
	Properties    echonet.Properties `json:"properties"`
}

// Wire types for setting/boxInfo.

type boxInfoResponse struct {
	Box []boxEntry `json:"box"`
}

type boxEntry struct {
	BoxID           string             `json:"boxId"`
	TerminalAppInfo []terminalAppEntry `json:"terminalAppInfo"`
	EchonetData     []echonetDevice    `json:"echonetData"`
}

// terminalAppEntry is one slot in the box's fixed-capacity registration
// table. AppName is null for orphaned, script-generated registrations.
type terminalAppEntry struct {
	TerminalAppID string  `json:"terminalAppId"`
	AppName       *string `json:"appName"`
}

type echonetDevice struct {
	DeviceID          int64  `json:"deviceId"`
	Maker             string `json:"maker"`
	Model             string `json:"model"`
	EchonetNode       string `json:"echonetNode"`
	EchonetObject     string `json:"echonetObject"`
	PropertyUpdatedAt string `json:"propertyUpdatedAt"`
	LabelData         struct {
		Name string `json:"name"`
	} `json:"labelData"`
	EchonetProperty string `json:"echonetProperty"`
}

func (e echonetDevice) toDevice(boxID string) Device {
	name := e.LabelData.Name
	if name == "" {
		name = "Sharp Air Purifier"
	}
	return Device{
		BoxID:         boxID,
		DeviceID:      strconv.FormatInt(e.DeviceID, 10),
		Name:          name,
		Maker:         e.Maker,
		Model:         e.Model,
		EchonetNode:   e.EchonetNode,
		EchonetObject: e.EchonetObject,
		UpdatedAt:     e.PropertyUpdatedAt,
		Properties:    echonet.Decode(e.EchonetProperty),
	}
}

// Wire types for control/deviceControl.

type controlRequest struct {
	ControlList []controlEntry `json:"controlList"`
}

type controlEntry struct {
	DeviceID      int64           `json:"deviceId"`
	EchonetNode   string          `json:"echonetNode"`
	EchonetObject string          `json:"echonetObject"`
	Status        []ControlStatus `json:"status"`
}

// ControlStatus is one property write inside a control command.
type ControlStatus struct {
	StatusCode  string       `json:"statusCode"`
	ValueType   string       `json:"valueType"`
	ValueSingle *StatusValue `json:"valueSingle,omitempty"`
	ValueBinary *StatusValue `json:"valueBinary,omitempty"`
}

type StatusValue struct {
	Code string `json:"code"`
}

func singleValue(statusCode, code string) ControlStatus {
	return ControlStatus{
		StatusCode:  statusCode,
		ValueType:   "valueSingle",
		ValueSingle: &StatusValue{Code: code},
	}
}

func binaryValue(statusCode, code string) ControlStatus {
	return ControlStatus{
		StatusCode:  statusCode,
		ValueType:   "valueBinary",
		ValueBinary: &StatusValue{Code: code},
	}
}
