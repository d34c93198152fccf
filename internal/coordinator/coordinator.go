// Package coordinator keeps a local snapshot of the cloud device state
// fresh and issues control commands against it. It owns no timers; the
// daemon schedules Refresh.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rsokolowski/sharp-cocoro-air/internal/cocoro"
	"github.com/rsokolowski/sharp-cocoro-air/internal/echonet"
	"github.com/rsokolowski/sharp-cocoro-air/internal/metrics"
)

// ErrReauthRequired means the stored credentials no longer work; retrying
// without new ones cannot succeed.
var ErrReauthRequired = errors.New("reauthentication required")

// ErrUpdateFailed marks a transient failure; the caller may retry on the
// next scheduled poll.
var ErrUpdateFailed = errors.New("update failed")

// CloudAPI is the client surface the coordinator needs. *cocoro.Client
// satisfies it; tests substitute a fake.
type CloudAPI interface {
	FullInit(ctx context.Context) error
	GetDevices(ctx context.Context) ([]cocoro.Device, error)
	PowerOn(ctx context.Context, d cocoro.Device) (json.RawMessage, error)
	PowerOff(ctx context.Context, d cocoro.Device) (json.RawMessage, error)
	SetMode(ctx context.Context, d cocoro.Device, mode string) (json.RawMessage, error)
	SetHumidify(ctx context.Context, d cocoro.Device, on bool) (json.RawMessage, error)
}

type Options struct {
	StartupRetries int           // total attempts, default 3
	RetryDelay     time.Duration // delay between attempts, default 10s
}

type Coordinator struct {
	api  CloudAPI
	opts Options

	// opMu serializes network operations: commands and polls never
	// overlap. stateMu guards the snapshot for concurrent readers.
	opMu    sync.Mutex
	stateMu sync.RWMutex
	devices map[string]cocoro.Device
	updated time.Time
}

func New(api CloudAPI, opts Options) *Coordinator {
	if opts.StartupRetries <= 0 {
		opts.StartupRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}
	return &Coordinator{
		api:     api,
		opts:    opts,
		devices: map[string]cocoro.Device{},
	}
}

// Setup runs the full login/registration/pairing sequence, retrying
// transient failures a bounded number of times with a fixed delay. An
// authentication failure is surfaced immediately: retrying bad
// credentials cannot succeed.
func (c *Coordinator) Setup(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := c.api.FullInit(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if cocoro.IsAuth(err) {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %v", ErrReauthRequired, err))
		}
		slog.Warn("cloud init attempt failed", "attempt", attempt, "max", c.opts.StartupRetries, "error", err)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.RetryDelay)),
		backoff.WithMaxTries(uint(c.opts.StartupRetries)))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrReauthRequired) {
		return err
	}
	return fmt.Errorf("%w: cannot reach cocoro cloud: %v", ErrUpdateFailed, err)
}

// Refresh fetches the device list and replaces the snapshot wholesale.
// An expired session is recovered transparently: re-run the handshake
// once and retry the fetch exactly once.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	devices, err := c.api.GetDevices(ctx)
	if cocoro.IsAuth(err) {
		slog.Info("session expired, attempting re-login")
		if err := c.api.FullInit(ctx); err != nil {
			return c.refreshErr(classifyRelogin(err))
		}
		devices, err = c.api.GetDevices(ctx)
	}
	if err != nil {
		return c.refreshErr(classifyRelogin(err))
	}

	snapshot := make(map[string]cocoro.Device, len(devices))
	for _, d := range devices {
		snapshot[d.DeviceID] = d
	}

	c.stateMu.Lock()
	c.devices = snapshot
	c.updated = time.Now()
	c.stateMu.Unlock()

	metrics.PollsTotal.WithLabelValues("ok").Inc()
	metrics.DevicesSeen.Set(float64(len(snapshot)))
	return nil
}

func (c *Coordinator) refreshErr(err error) error {
	metrics.PollsTotal.WithLabelValues("error").Inc()
	return err
}

func classifyRelogin(err error) error {
	if cocoro.IsAuth(err) {
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
}

// Devices returns a copy of the current snapshot.
func (c *Coordinator) Devices() []cocoro.Device {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]cocoro.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

// Device looks up one device by id.
func (c *Coordinator) Device(id string) (cocoro.Device, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

// UpdatedAt reports when the snapshot was last replaced by a real poll.
func (c *Coordinator) UpdatedAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.updated
}

// PowerOn turns a device on and optimistically marks it on in the
// snapshot; the cloud lags behind control commands, so waiting for the
// next poll would report stale state.
func (c *Coordinator) PowerOn(ctx context.Context, deviceID string) error {
	return c.command(ctx, deviceID, "power_on", func(d cocoro.Device) (json.RawMessage, error) {
		return c.api.PowerOn(ctx, d)
	}, func(p *echonet.Properties) {
		p.Power = strPtr("on")
	})
}

// PowerOff turns a device off.
func (c *Coordinator) PowerOff(ctx context.Context, deviceID string) error {
	return c.command(ctx, deviceID, "power_off", func(d cocoro.Device) (json.RawMessage, error) {
		return c.api.PowerOff(ctx, d)
	}, func(p *echonet.Properties) {
		p.Power = strPtr("off")
	})
}

// SetMode switches the operation mode.
func (c *Coordinator) SetMode(ctx context.Context, deviceID, mode string) error {
	display := cocoro.ModeDisplayNames[mode]
	if display == "" {
		display = mode
	}
	return c.command(ctx, deviceID, "set_mode", func(d cocoro.Device) (json.RawMessage, error) {
		return c.api.SetMode(ctx, d, mode)
	}, func(p *echonet.Properties) {
		p.OperationMode = strPtr(display)
	})
}

// SetHumidify toggles humidification.
func (c *Coordinator) SetHumidify(ctx context.Context, deviceID string, on bool) error {
	return c.command(ctx, deviceID, "set_humidify", func(d cocoro.Device) (json.RawMessage, error) {
		return c.api.SetHumidify(ctx, d, on)
	}, func(p *echonet.Properties) {
		v := on
		p.Humidify = &v
	})
}

// ErrUnknownDevice is returned for commands addressing a device id absent
// from the snapshot.
var ErrUnknownDevice = errors.New("unknown device")

func (c *Coordinator) command(ctx context.Context, deviceID, name string, send func(cocoro.Device) (json.RawMessage, error), patch func(*echonet.Properties)) error {
	d, ok := c.Device(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	c.opMu.Lock()
	_, err := send(d)
	c.opMu.Unlock()
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		if cocoro.IsAuth(err) {
			return fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return fmt.Errorf("command failed: %w", err)
	}
	metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()

	// Optimistic patch: predicted state, unconditionally overwritten by
	// the next real poll.
	c.stateMu.Lock()
	if cur, ok := c.devices[deviceID]; ok {
		props := cur.Properties
		patch(&props)
		cur.Properties = props
		c.devices[deviceID] = cur
	}
	c.stateMu.Unlock()
	return nil
}

func strPtr(s string) *string { return &s }
