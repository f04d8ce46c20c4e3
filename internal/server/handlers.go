// Package server holds the HTTP handlers for the gateway's own surface:
// health, the root banner, live stats, and reCAPTCHA verification.
// Distinct from internal/proxy, which handles tenant-bound traffic.
// Grounded on the teacher's internal/api handler shape (thin handlers
// delegating to components, response.JSON/.Error for the body).
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"wafgateway/internal/captcha"
	"wafgateway/internal/telemetry"
	"wafgateway/pkg/response"
)

// Handlers exposes the gateway's own endpoints (spec §6).
type Handlers struct {
	hub    *telemetry.Hub
	gate   *captcha.Gate
	log    *zap.SugaredLogger
}

// New builds Handlers.
func New(hub *telemetry.Hub, gate *captcha.Gate, log *zap.SugaredLogger) *Handlers {
	return &Handlers{hub: hub, gate: gate, log: log}
}

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health answers the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.log, healthBody{Status: "healthy", Service: "WAF Proxy"}, http.StatusOK)
}

type rootBody struct {
	Message       string `json:"message"`
	Version       string `json:"version"`
	Documentation string `json:"documentation"`
}

// Root answers the service banner at the exact "/" path.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.log, rootBody{
		Message:       "WAF Proxy Service",
		Version:       "1.0.0",
		Documentation: "/docs",
	}, http.StatusOK)
}

type statsBody struct {
	RPS               float64 `json:"rps"`
	ActiveConnections int     `json:"active_connections"`
}

// Stats answers a snapshot of live dashboard metrics.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.log, statsBody{
		RPS:               h.hub.RollingRPS(),
		ActiveConnections: h.hub.ActiveConnections(),
	}, http.StatusOK)
}

type verifyRequest struct {
	Token string `json:"token"`
	IP    string `json:"ip"`
}

type verifyResponse struct {
	Status string `json:"status"`
}

// VerifyRecaptcha handles the dashboard's challenge-solve callback. The
// marker it persists is keyed on the IP the caller supplies in the body,
// not the transport-resolved client IP: the two are conceptually distinct,
// the body's ip is whatever the challenge page believes identifies the
// browser session.
func (h *Handlers) VerifyRecaptcha(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, h.log, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req verifyRequest
	if r.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(r.Body).Decode(&req)
	} else {
		_ = r.ParseForm()
		req.Token = r.FormValue("token")
		req.IP = r.FormValue("ip")
	}

	if req.Token == "" || req.IP == "" {
		response.Error(w, h.log, http.StatusBadRequest, "Missing data", "")
		return
	}

	err := h.gate.MarkSolved(r.Context(), req.IP, req.Token)
	if err != nil && captcha.IsProviderRejection(err) {
		response.Error(w, h.log, http.StatusForbidden, "Verification failed", "")
		return
	}
	response.JSON(w, h.log, verifyResponse{Status: "success"}, http.StatusOK)
}
