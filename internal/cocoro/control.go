package cocoro

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// Fixed F3 payloads per operation mode, captured from the vendor app.
var modeCodes = map[string]string{
	"auto":    "010100001000000000000000000000000000000000000000000000",
	"night":   "010100001100000000000000000000000000000000000000000000",
	"pollen":  "010100001300000000000000000000000000000000000000000000",
	"silent":  "010100001400000000000000000000000000000000000000000000",
	"medium":  "010100001500000000000000000000000000000000000000000000",
	"high":    "010100001600000000000000000000000000000000000000000000",
	"ai_auto": "010100002000000000000000000000000000000000000000000000",
	"realize": "010100004000000000000000000000000000000000000000000000",
}

// ModeDisplayNames maps a mode key to the name a decoded telemetry blob
// reports for it, so optimistic updates match what the next poll decodes.
var ModeDisplayNames = map[string]string{
	"auto":    "Auto",
	"night":   "Night",
	"pollen":  "Pollen",
	"silent":  "Silent",
	"medium":  "Medium",
	"high":    "High",
	"ai_auto": "AI Auto",
	"realize": "Realize",
}

// Modes lists the accepted mode keys, sorted.
func Modes() []string {
	keys := make([]string, 0, len(modeCodes))
	for k := range modeCodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	humidifyOnCode  = "000900000000000000000000000000FF0000000000000000000000"
	humidifyOffCode = "000900000000000000000000000000000000000000000000000000"
	powerOnF3Code   = "00030000000000000000000000FF00000000000000000000000000"
	powerOffF3Code  = "000300000000000000000000000000000000000000000000000000"
)

// PowerOn turns the device on.
func (c *Client) PowerOn(ctx context.Context, d Device) (json.RawMessage, error) {
	return c.Control(ctx, d, []ControlStatus{
		singleValue("80", "30"),
		binaryValue("F3", powerOnF3Code),
	})
}

// PowerOff turns the device off.
func (c *Client) PowerOff(ctx context.Context, d Device) (json.RawMessage, error) {
	return c.Control(ctx, d, []ControlStatus{
		singleValue("80", "31"),
		binaryValue("F3", powerOffF3Code),
	})
}

// SetMode switches the operation mode. An unknown mode key is a caller
// error; no request is sent.
func (c *Client) SetMode(ctx context.Context, d Device, mode string) (json.RawMessage, error) {
	code, ok := modeCodes[mode]
	if !ok {
		return nil, NewAPIError("unknown mode %q, valid: %s", mode, strings.Join(Modes(), ", "))
	}
	return c.Control(ctx, d, []ControlStatus{binaryValue("F3", code)})
}

// SetHumidify turns humidification on or off.
func (c *Client) SetHumidify(ctx context.Context, d Device, on bool) (json.RawMessage, error) {
	code := humidifyOffCode
	if on {
		code = humidifyOnCode
	}
	return c.Control(ctx, d, []ControlStatus{binaryValue("F3", code)})
}
