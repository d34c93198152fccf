// Package httpapi exposes the adapter's REST surface: snapshot listing
// and device commands.
package httpapi

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rsokolowski/sharp-cocoro-air/internal/auth"
	"github.com/rsokolowski/sharp-cocoro-air/internal/cocoro"
	"github.com/rsokolowski/sharp-cocoro-air/internal/coordinator"
)

type Server struct {
	coord  *coordinator.Coordinator
	pubKey *rsa.PublicKey
}

// NewServer builds the API server. pubKey may be nil, which disables the
// token guard on control endpoints.
func NewServer(coord *coordinator.Coordinator, pubKey *rsa.PublicKey) *Server {
	return &Server{coord: coord, pubKey: pubKey}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/devices", s.handleListDevices)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/devices/{id}/power", s.requireResident(s.handlePower))
	r.Post("/devices/{id}/mode", s.requireResident(s.handleMode))
	r.Post("/devices/{id}/humidify", s.requireResident(s.handleHumidify))
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":    s.coord.Devices(),
		"updated_at": s.coord.UpdatedAt(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Refresh(r.Context()); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "devices": len(s.coord.Devices())})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.On == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: expected {\"on\": bool}")
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	if *body.On {
		err = s.coord.PowerOn(r.Context(), id)
	} else {
		err = s.coord.PowerOff(r.Context(), id)
	}
	s.finishCommand(w, id, err)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Mode == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid json: expected {\"mode\": string}")
		return
	}
	if _, known := cocoro.ModeDisplayNames[body.Mode]; !known {
		writeJSONError(w, http.StatusBadRequest,
			"unknown mode "+body.Mode+", valid: "+strings.Join(cocoro.Modes(), ", "))
		return
	}
	id := chi.URLParam(r, "id")
	s.finishCommand(w, id, s.coord.SetMode(r.Context(), id, body.Mode))
}

func (s *Server) handleHumidify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.On == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: expected {\"on\": bool}")
		return
	}
	id := chi.URLParam(r, "id")
	s.finishCommand(w, id, s.coord.SetHumidify(r.Context(), id, *body.On))
}

func (s *Server) finishCommand(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	d, _ := s.coord.Device(id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "device": d})
}

func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnknownDevice):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coordinator.ErrReauthRequired):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, coordinator.ErrUpdateFailed):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSONError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) requireResident(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pubKey == nil {
			next(w, r)
			return
		}
		role, err := auth.RoleFromRequest(s.pubKey, r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !auth.RoleAtLeast("resident", role) {
			writeJSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message, "code": status})
}
