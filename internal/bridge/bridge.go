// Package bridge mirrors the coordinator's device snapshot onto MQTT and
// accepts control commands from it, so other services can integrate
// without touching the cloud API.
//
// Topics: <prefix>/<deviceID>/state (retained snapshot per device),
// <prefix>/<deviceID>/set (incoming commands) and <prefix>/<deviceID>/result
// (per-command acknowledgement with correlation id).
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/rsokolowski/sharp-cocoro-air/internal/coordinator"
	"github.com/rsokolowski/sharp-cocoro-air/internal/mqtt"
)

type Bridge struct {
	client mqtt.ClientAPI
	coord  *coordinator.Coordinator
	prefix string
}

// command is the payload accepted on the set topic. Absent fields are
// left untouched.
type command struct {
	CorrelationID string  `json:"correlation_id,omitempty"`
	Power         *string `json:"power,omitempty"`
	Mode          *string `json:"mode,omitempty"`
	Humidify      *bool   `json:"humidify,omitempty"`
}

type commandResult struct {
	CorrelationID string `json:"correlation_id"`
	DeviceID      string `json:"device_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

func New(client mqtt.ClientAPI, coord *coordinator.Coordinator, prefix string) *Bridge {
	if prefix == "" {
		prefix = "cocoro"
	}
	return &Bridge{client: client, coord: coord, prefix: prefix}
}

// Start subscribes to the command topic for all devices.
func (b *Bridge) Start() error {
	return b.client.Subscribe(b.prefix+"/+/set", func(_ paho.Client, msg mqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
}

// PublishStates publishes one retained state message per device in the
// current snapshot.
func (b *Bridge) PublishStates() {
	for _, d := range b.coord.Devices() {
		payload, err := json.Marshal(d)
		if err != nil {
			slog.Error("marshal device state", "device", d.DeviceID, "error", err)
			continue
		}
		topic := b.prefix + "/" + d.DeviceID + "/state"
		if err := b.client.PublishRetained(topic, payload); err != nil {
			slog.Warn("publish device state", "topic", topic, "error", err)
		}
	}
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	deviceID := deviceIDFromTopic(topic, b.prefix)
	if deviceID == "" {
		slog.Warn("ignoring command on unexpected topic", "topic", topic)
		return
	}

	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		slog.Warn("invalid command payload", "topic", topic, "error", err)
		return
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	err := b.dispatch(ctx, deviceID, cmd)
	res := commandResult{CorrelationID: cmd.CorrelationID, DeviceID: deviceID, Status: "ok"}
	if err != nil {
		slog.Warn("mqtt command failed", "device", deviceID, "error", err)
		res.Status = "error"
		res.Error = err.Error()
	} else {
		b.PublishStates()
	}
	out, _ := json.Marshal(res)
	if err := b.client.Publish(b.prefix+"/"+deviceID+"/result", out); err != nil {
		slog.Warn("publish command result", "device", deviceID, "error", err)
	}
}

func (b *Bridge) dispatch(ctx context.Context, deviceID string, cmd command) error {
	if cmd.Power != nil {
		var err error
		if *cmd.Power == "on" {
			err = b.coord.PowerOn(ctx, deviceID)
		} else {
			err = b.coord.PowerOff(ctx, deviceID)
		}
		if err != nil {
			return err
		}
	}
	if cmd.Mode != nil {
		if err := b.coord.SetMode(ctx, deviceID, *cmd.Mode); err != nil {
			return err
		}
	}
	if cmd.Humidify != nil {
		if err := b.coord.SetHumidify(ctx, deviceID, *cmd.Humidify); err != nil {
			return err
		}
	}
	return nil
}

func deviceIDFromTopic(topic, prefix string) string {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
