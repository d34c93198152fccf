package cocoro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
)

// fakeIdP emulates the identity provider: an authorize page and a login
// form that redirects to the app scheme on success.
func fakeIdP(t *testing.T, loginStatus int, location string) (*httptest.Server, *int) {
	t.Helper()
	hits := new(int)
	mux := http.NewServeMux()
	mux.HandleFunc("/oxauth/restv1/authorize", func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if r.URL.Query().Get("client_id") == "" {
			t.Error("authorize request missing client_id")
		}
		if r.URL.Query().Get("response_type") != "code" {
			t.Errorf("response_type = %q, want code", r.URL.Query().Get("response_type"))
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/oxauth/login.htm", func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if location != "" {
			w.Header().Set("Location", location)
		}
		w.WriteHeader(loginStatus)
	})
	return httptest.NewServer(mux), hits
}

func TestLoginSuccess(t *testing.T) {
	var mu sync.Mutex
	var loginBody map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/setting/terminalAppId/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appSecret") == "" {
			t.Error("bootstrap request missing appSecret")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"terminalAppId": "term-1"})
	})
	mux.HandleFunc("/setting/login/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&loginBody); err != nil {
			t.Errorf("decode login body: %v", err)
		}
		if r.URL.Query().Get("serviceName") != "sharp-eu" {
			t.Errorf("serviceName = %q, want sharp-eu", r.URL.Query().Get("serviceName"))
		}
		w.Write([]byte("{}"))
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	idp, _ := fakeIdP(t, http.StatusFound, "sharp-cocoroair-eu://authorize?code=abc123")
	defer idp.Close()

	c := New(Config{Email: "u@example.com", Password: "pw", APIBase: hms.URL + "/", AuthBase: idp.URL})
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got := c.TerminalAppID(); got != "term-1" {
		t.Errorf("TerminalAppID() = %q, want term-1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if loginBody["tempAccToken"] != "abc123" {
		t.Errorf("tempAccToken = %q, want abc123", loginBody["tempAccToken"])
	}
	if loginBody["terminalAppId"] != "term-1" {
		t.Errorf("terminalAppId = %q, want term-1", loginBody["terminalAppId"])
	}
	if len(loginBody["password"]) != 32 {
		t.Errorf("nonce length = %d, want 32", len(loginBody["password"]))
	}
}

func TestLoginBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/setting/terminalAppId/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"terminalAppId": "term-1"})
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	// The provider re-renders the form with 200 instead of redirecting.
	idp, _ := fakeIdP(t, http.StatusOK, "")
	defer idp.Close()

	c := New(Config{Email: "u@example.com", Password: "wrong", APIBase: hms.URL + "/", AuthBase: idp.URL})
	err := c.Login(context.Background())
	if !IsAuth(err) {
		t.Fatalf("Login() error = %v, want auth error", err)
	}
}

func TestLoginBootstrapFailureSkipsIdP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/setting/terminalAppId/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	idp, hits := fakeIdP(t, http.StatusFound, "sharp-cocoroair-eu://authorize?code=abc123")
	defer idp.Close()

	c := New(Config{Email: "u@example.com", Password: "pw", APIBase: hms.URL + "/", AuthBase: idp.URL})
	err := c.Login(context.Background())
	if !IsAPI(err) {
		t.Fatalf("Login() error = %v, want API error", err)
	}
	if *hits != 0 {
		t.Errorf("identity provider received %d requests, want 0", *hits)
	}
}

func TestRequireSession(t *testing.T) {
	c := New(Config{Email: "u@example.com", Password: "pw"})
	if _, err := c.GetDevices(context.Background()); !IsAuth(err) {
		t.Fatalf("GetDevices() before login error = %v, want auth error", err)
	}
}

const boxInfoFixture = `{
  "box": [
    {
      "boxId": "box-1",
      "terminalAppInfo": [],
      "echonetData": [
        {
          "deviceId": 101,
          "maker": "SHARP",
          "model": "KI-ND50",
          "echonetNode": "node-1",
          "echonetObject": "obj-1",
          "propertyUpdatedAt": "2024-01-02 03:04:05",
          "labelData": {"name": "Living Room"},
          "echonetProperty": "00000000000000008001308b03312e30"
        },
        {
          "deviceId": 102,
          "maker": "SHARP",
          "model": "KI-ND50",
          "echonetNode": "node-2",
          "echonetObject": "obj-2",
          "propertyUpdatedAt": "2024-01-02 03:04:06",
          "labelData": {},
          "echonetProperty": ""
        }
      ]
    }
  ]
}`

func TestGetDevices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/setting/boxInfo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "other" {
			t.Errorf("mode = %q, want other", r.URL.Query().Get("mode"))
		}
		w.Write([]byte(boxInfoFixture))
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	c := New(Config{APIBase: hms.URL + "/"})
	c.terminalAppID = "term-1"

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	d := devices[0]
	if d.BoxID != "box-1" || d.DeviceID != "101" || d.Name != "Living Room" {
		t.Errorf("device = %+v, want box-1/101/Living Room", d)
	}
	if d.Properties.Power == nil || *d.Properties.Power != "on" {
		t.Errorf("Power = %v, want on", d.Properties.Power)
	}
	if d.Properties.Firmware == nil || *d.Properties.Firmware != "1.0" {
		t.Errorf("Firmware = %v, want 1.0", d.Properties.Firmware)
	}

	if devices[1].Name != "Sharp Air Purifier" {
		t.Errorf("fallback name = %q, want Sharp Air Purifier", devices[1].Name)
	}
	if devices[1].Properties.Power != nil {
		t.Errorf("empty telemetry decoded Power = %v, want nil", devices[1].Properties.Power)
	}
}

func TestPairBoxesEvictsOnlyOwnedSlots(t *testing.T) {
	phone := "iGrone:1:2.0.0"
	stale := "spremote_ha_eu:1:0.9.0"
	fixture := map[string]any{
		"box": []map[string]any{{
			"boxId": "box-1",
			"terminalAppInfo": []map[string]any{
				{"terminalAppId": "term-self", "appName": "spremote_ha_eu:1:1.0.0"},
				{"terminalAppId": "term-phone", "appName": phone},
				{"terminalAppId": "term-stale", "appName": stale},
				{"terminalAppId": "term-orphan", "appName": nil},
			},
			"echonetData": []map[string]any{},
		}},
	}

	var mu sync.Mutex
	var unpaired []string
	paired := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/setting/boxInfo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fixture)
	})
	mux.HandleFunc("/setting/pairing/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			if r.URL.Query().Get("houseFlag") != "true" {
				t.Errorf("houseFlag = %q, want true", r.URL.Query().Get("houseFlag"))
			}
			unpaired = append(unpaired, r.URL.Query().Get("terminalAppId"))
		case http.MethodPost:
			paired++
		default:
			t.Errorf("unexpected method %s on pairing endpoint", r.Method)
		}
		w.Write([]byte("{}"))
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	c := New(Config{APIBase: hms.URL + "/"})
	c.terminalAppID = "term-self"

	if err := c.PairBoxes(context.Background()); err != nil {
		t.Fatalf("PairBoxes() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(unpaired)
	want := []string{"term-orphan", "term-stale"}
	if len(unpaired) != len(want) || unpaired[0] != want[0] || unpaired[1] != want[1] {
		t.Errorf("unpaired = %v, want %v", unpaired, want)
	}
	if paired != 1 {
		t.Errorf("pair requests = %d, want 1", paired)
	}
}

func TestErrorClassification(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	c := New(Config{APIBase: srv.URL + "/"})
	c.terminalAppID = "term-1"
	ctx := context.Background()

	status = http.StatusUnauthorized
	if _, err := c.GetDevices(ctx); !IsAuth(err) {
		t.Errorf("401 error = %v, want auth error", err)
	}
	status = http.StatusForbidden
	if _, err := c.GetDevices(ctx); !IsAuth(err) {
		t.Errorf("403 error = %v, want auth error", err)
	}
	status = http.StatusInternalServerError
	if _, err := c.GetDevices(ctx); !IsAPI(err) {
		t.Errorf("500 error = %v, want API error", err)
	}

	srv.Close()
	if _, err := c.GetDevices(ctx); !IsConnection(err) {
		t.Errorf("dead server error = %v, want connection error", err)
	}
}

func TestSetModeUnknownSendsNothing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(Config{APIBase: srv.URL + "/"})
	c.terminalAppID = "term-1"

	d := Device{BoxID: "box-1", DeviceID: "101"}
	_, err := c.SetMode(context.Background(), d, "warp")
	if !IsAPI(err) {
		t.Fatalf("SetMode(warp) error = %v, want API error", err)
	}
	if calls != 0 {
		t.Errorf("server received %d requests, want 0", calls)
	}
}

func TestControlBody(t *testing.T) {
	var got controlRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/control/deviceControl", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("boxId") != "box-1" {
			t.Errorf("boxId = %q, want box-1", r.URL.Query().Get("boxId"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode control body: %v", err)
		}
		w.Write([]byte(`{"controlList":[{"status":"success"}]}`))
	})
	hms := httptest.NewServer(mux)
	defer hms.Close()

	c := New(Config{APIBase: hms.URL + "/"})
	c.terminalAppID = "term-1"

	d := Device{BoxID: "box-1", DeviceID: "101", EchonetNode: "node-1", EchonetObject: "obj-1"}
	if _, err := c.PowerOn(context.Background(), d); err != nil {
		t.Fatalf("PowerOn() error = %v", err)
	}

	if len(got.ControlList) != 1 {
		t.Fatalf("controlList length = %d, want 1", len(got.ControlList))
	}
	entry := got.ControlList[0]
	if entry.DeviceID != 101 || entry.EchonetNode != "node-1" {
		t.Errorf("control entry = %+v", entry)
	}
	if len(entry.Status) != 2 {
		t.Fatalf("status length = %d, want 2", len(entry.Status))
	}
	if entry.Status[0].StatusCode != "80" || entry.Status[0].ValueSingle.Code != "30" {
		t.Errorf("power status = %+v", entry.Status[0])
	}
	if entry.Status[1].StatusCode != "F3" || entry.Status[1].ValueBinary == nil {
		t.Errorf("binary status = %+v", entry.Status[1])
	}
}
