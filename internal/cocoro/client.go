// Package cocoro implements the Sharp COCORO Air EU cloud client: the
// login handshake against the Sharp identity provider, the HMS relay API
// (device listing, terminal registration, pairing) and the device control
// primitives.
package cocoro

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIBase  = "https://eu-hms.cloudlabs.sharp.co.jp/hems/pfApi/ta/"
	defaultAuthBase = "https://auth-eu.global.sharp"

	// Extracted from the Sharp Life AIR EU app (jp.co.sharp.hms.smartlink.eu).
	appSecret = "pngtfljRoYsJE9NW7opn1t2cXA5MtZDKbwon368hs80="
	clientID  = "8c7f4378-5f26-4618-9854-483ad86bec0a"

	redirectScheme = "sharp-cocoroair-eu"
	redirectURI    = redirectScheme + "://authorize"

	userAgent = "smartlink_v200a_eu Mozilla/5.0 (Linux; Android 14) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Mobile"
	browserUA = "Mozilla/5.0 (Linux; Android 14) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Mobile"

	// terminalAppName identifies our registrations in a box's slot table;
	// stale slots from prior runs are recognized by terminalAppPrefix.
	terminalAppName   = "spremote_ha_eu:1:1.0.0"
	terminalAppPrefix = "spremote_ha_eu"

	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Config carries the account credentials plus optional endpoint overrides
// (used by tests and alternate regions).
type Config struct {
	Email    string
	Password string
	APIBase  string
	AuthBase string
}

// Client talks to the HMS relay on behalf of one account. The session
// identity (terminal app id) is owned by the instance; there is no global
// session state. Callers are expected to issue one operation at a time.
type Client struct {
	email    string
	password string
	apiBase  string
	authBase string

	terminalAppID string
	httpClient    *http.Client
}

func New(cfg Config) *Client {
	c := &Client{
		email:    cfg.Email,
		password: cfg.Password,
		apiBase:  cfg.APIBase,
		authBase: cfg.AuthBase,
	}
	if c.apiBase == "" {
		c.apiBase = defaultAPIBase
	}
	if c.authBase == "" {
		c.authBase = defaultAuthBase
	}
	return c
}

// ensureClient creates the HTTP client on first use so that constructing a
// Client never touches the network stack.
func (c *Client) ensureClient() *http.Client {
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	return c.httpClient
}

// Close releases the HTTP session. The client may be reused afterwards; a
// new session is created lazily.
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
}

// TerminalAppID returns the server-issued session identity, empty before a
// successful login.
func (c *Client) TerminalAppID() string { return c.terminalAppID }

func (c *Client) requireSession() error {
	if c.terminalAppID == "" {
		return NewAuthError("not logged in")
	}
	return nil
}

// request is the single dispatch point for HMS calls. It appends the
// shared appSecret to every URL, classifies the response status into the
// three error kinds and returns the raw body (empty body is a valid empty
// result, not a parse failure).
func (c *Client) request(ctx context.Context, method, path string, body any, params url.Values) ([]byte, error) {
	q := url.Values{}
	q.Set("appSecret", appSecret)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u := c.apiBase + path + "?" + q.Encode()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, NewAPIError("encode request for %s: %v", path, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, NewAPIError("build request for %s: %v", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.ensureClient().Do(req)
	if err != nil {
		return nil, NewConnectionError(err, "request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewConnectionError(err, "read response from %s: %v", path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewAuthError("auth error %d on %s: %s", resp.StatusCode, path, truncate(data, 200))
	}
	if resp.StatusCode >= 400 {
		return nil, NewAPIError("API error %d on %s: %s", resp.StatusCode, path, truncate(data, 200))
	}
	return data, nil
}

// FullInit performs the complete startup sequence: login, account lookup,
// terminal registration and pairing reconciliation.
func (c *Client) FullInit(ctx context.Context) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	if _, err := c.UserInfo(ctx); err != nil {
		return err
	}
	if err := c.RegisterTerminal(ctx); err != nil {
		return err
	}
	return c.PairBoxes(ctx)
}

// UserInfo fetches the account record; the app flow calls it right after
// login.
func (c *Client) UserInfo(ctx context.Context) (map[string]any, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	data, err := c.request(ctx, http.MethodGet, "setting/userInfo", nil,
		url.Values{"terminalAppId": {c.terminalAppID}})
	if err != nil {
		return nil, err
	}
	return decodeObject(data, "setting/userInfo")
}

// RegisterTerminal announces this client to the relay. Control endpoints
// reject terminals that never registered.
func (c *Client) RegisterTerminal(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	body := map[string]string{
		"name":      "cocoro-adapter",
		"os":        "Android",
		"osVersion": "14",
		"pushId":    "",
		"appName":   terminalAppName,
	}
	_, err := c.request(ctx, http.MethodPost, "setting/terminal", body, nil)
	return err
}

// getBoxes fetches every box with its slot table and device telemetry.
func (c *Client) getBoxes(ctx context.Context) (*boxInfoResponse, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	data, err := c.request(ctx, http.MethodGet, "setting/boxInfo", nil,
		url.Values{"mode": {"other"}})
	if err != nil {
		return nil, err
	}
	var info boxInfoResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, NewAPIError("decode setting/boxInfo: %v", err)
		}
	}
	return &info, nil
}

// GetDevices returns the flattened device list with decoded telemetry.
// It does not mutate client state.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	info, err := c.getBoxes(ctx)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, box := range info.Box {
		for _, edev := range box.EchonetData {
			devices = append(devices, edev.toDevice(box.BoxID))
		}
	}
	return devices, nil
}

// PairBoxes reconciles every box's registration slot table and then pairs
// this client. Boxes hold at most 5 slots, so stale registrations from
// prior runs and orphaned null-name slots are evicted first. Slots owned
// by a real phone app are never touched. Individual slot failures are
// logged and skipped; reconciliation is best effort, not transactional.
func (c *Client) PairBoxes(ctx context.Context) error {
	info, err := c.getBoxes(ctx)
	if err != nil {
		return err
	}
	for _, box := range info.Box {
		for _, slot := range box.TerminalAppInfo {
			if slot.TerminalAppID == c.terminalAppID {
				continue
			}
			if slot.AppName != nil && !strings.HasPrefix(*slot.AppName, terminalAppPrefix) {
				continue
			}
			params := url.Values{
				"terminalAppId": {slot.TerminalAppID},
				"boxId":         {box.BoxID},
				"houseFlag":     {"true"},
			}
			if _, err := c.request(ctx, http.MethodPut, "setting/pairing/", nil, params); err != nil {
				slog.Warn("failed to unpair stale terminal", "terminalAppId", slot.TerminalAppID, "box", box.BoxID, "error", err)
			}
		}

		params := url.Values{"boxId": {box.BoxID}, "houseFlag": {"true"}}
		if _, err := c.request(ctx, http.MethodPost, "setting/pairing/", nil, params); err != nil {
			slog.Warn("failed to pair box", "box", box.BoxID, "error", err)
		}
	}
	return nil
}

// Control sends a list of property writes to one device and returns the
// raw server acknowledgement.
func (c *Client) Control(ctx context.Context, d Device, status []ControlStatus) (json.RawMessage, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	deviceID, err := strconv.ParseInt(d.DeviceID, 10, 64)
	if err != nil {
		return nil, NewAPIError("invalid device id %q", d.DeviceID)
	}
	body := controlRequest{
		ControlList: []controlEntry{{
			DeviceID:      deviceID,
			EchonetNode:   d.EchonetNode,
			EchonetObject: d.EchonetObject,
			Status:        status,
		}},
	}
	params := url.Values{
		"boxId":         {d.BoxID},
		"terminalAppId": {c.terminalAppID},
	}
	data, err := c.request(ctx, http.MethodPost, "control/deviceControl", body, params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func decodeObject(data []byte, path string) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, NewAPIError("decode %s: %v", path, err)
	}
	return obj, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
