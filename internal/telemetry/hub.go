// Package telemetry implements spec §4.7: a per-process hub tracking
// live dashboard subscribers (admin vs. per-tenant), fanning out decision
// events, and computing rolling RPS. Grounded on the teacher's
// internal/utils/logger/logger.go Broker (non-blocking fan-out via
// select/default), extended with the admin/tenant split and rolling RPS
// window spec.md adds on top of that shape.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"wafgateway/internal/core"
)

// Subscriber is anything the hub can push JSON-encoded messages to.
// Transport-agnostic so the hub is unit-testable without a socket; the
// WebSocket adapter lives in ws.go.
type Subscriber interface {
	Send(message []byte) error
}

type subscription struct {
	id       string
	kind     core.SubscriberKind
	tenantID string
	sub      Subscriber
}

// RequestEvent is the request_event envelope broadcast on every decision.
type RequestEvent struct {
	Type       string  `json:"type"`
	ClientIP   string  `json:"client_ip"`
	ClientName string  `json:"client_name"`
	ClientID   string  `json:"client_id"`
	Host       string  `json:"host"`
	Path       string  `json:"path"`
	Method     string  `json:"method"`
	UserAgent  string  `json:"user_agent"`
	WAFBlocked bool    `json:"waf_blocked"`
	ThreatType string  `json:"threat_type"`
	Timestamp  int64   `json:"timestamp"`
	RuleID     string  `json:"rule_id"`
	RPS        float64 `json:"rps"`
}

// DashboardSnapshot is sent once on connect.
type DashboardSnapshot struct {
	Type              string  `json:"type"`
	RPS               float64 `json:"rps"`
	ActiveConnections int     `json:"active_connections"`
	TenantID          string  `json:"tenant_id,omitempty"`
}

// Hub is the Telemetry Hub component.
type Hub struct {
	mu      sync.RWMutex
	admin   map[string]subscription
	tenants map[string]map[string]subscription

	rpsMu      sync.Mutex
	timestamps []time.Time

	log *zap.SugaredLogger
}

// New builds an empty Hub.
func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		admin:   make(map[string]subscription),
		tenants: make(map[string]map[string]subscription),
		log:     log,
	}
}

// Subscribe registers a subscriber and sends it the initial
// dashboard_data snapshot.
func (h *Hub) Subscribe(id string, kind core.SubscriberKind, tenantID string, sub Subscriber) {
	entry := subscription{id: id, kind: kind, tenantID: tenantID, sub: sub}

	h.mu.Lock()
	if kind == core.SubscriberAdmin {
		h.admin[id] = entry
	} else {
		if h.tenants[tenantID] == nil {
			h.tenants[tenantID] = make(map[string]subscription)
		}
		h.tenants[tenantID][id] = entry
	}
	h.mu.Unlock()

	snapshot := DashboardSnapshot{
		Type:              "dashboard_data",
		RPS:               h.RollingRPS(),
		ActiveConnections: h.activeConnections(),
	}
	if kind == core.SubscriberTenant {
		snapshot.TenantID = tenantID
	}
	if encoded, err := json.Marshal(snapshot); err == nil {
		if err := sub.Send(encoded); err != nil {
			h.Unsubscribe(id, kind, tenantID)
		}
	}
}

// Unsubscribe removes a subscriber, whether by disconnect or a failed send.
func (h *Hub) Unsubscribe(id string, kind core.SubscriberKind, tenantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == core.SubscriberAdmin {
		delete(h.admin, id)
		return
	}
	if set, ok := h.tenants[tenantID]; ok {
		delete(set, id)
	}
}

func (h *Hub) activeConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.admin)
	for _, set := range h.tenants {
		n += len(set)
	}
	return n
}

// ActiveConnections reports the current subscriber count across admin and
// tenant dashboards, for the /stats endpoint.
func (h *Hub) ActiveConnections() int { return h.activeConnections() }

// RecordRequest marks one request's arrival for the rolling RPS window.
func (h *Hub) RecordRequest(at time.Time) {
	h.rpsMu.Lock()
	defer h.rpsMu.Unlock()
	h.timestamps = append(h.timestamps, at)
	h.pruneLocked(at)
}

// RollingRPS returns count_in_last_5s / 5.0, per spec §4.7.
func (h *Hub) RollingRPS() float64 {
	h.rpsMu.Lock()
	defer h.rpsMu.Unlock()
	now := time.Now()
	h.pruneLocked(now)

	count := 0
	cutoff := now.Add(-5 * time.Second)
	for _, ts := range h.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return float64(count) / 5.0
}

// pruneLocked drops timestamps older than the 10s retention window.
// Caller must hold rpsMu.
func (h *Hub) pruneLocked(now time.Time) {
	cutoff := now.Add(-10 * time.Second)
	i := 0
	for ; i < len(h.timestamps); i++ {
		if h.timestamps[i].After(cutoff) {
			break
		}
	}
	h.timestamps = h.timestamps[i:]
}

// Broadcast fans a decision out to the admin set and the specific
// tenant's set only. Each send is attempted independently; a failed send
// disconnects only that subscriber. Never called on the request's
// critical path, callers launch it with `go`.
func (h *Hub) Broadcast(tenantID string, event RequestEvent) {
	event.Type = "request_event"
	event.RPS = h.RollingRPS()

	encoded, err := json.Marshal(event)
	if err != nil {
		h.log.Warnw("telemetry: failed to encode request_event", "error", err)
		return
	}

	h.mu.RLock()
	admin := make([]subscription, 0, len(h.admin))
	for _, s := range h.admin {
		admin = append(admin, s)
	}
	var tenant []subscription
	if set, ok := h.tenants[tenantID]; ok {
		tenant = make([]subscription, 0, len(set))
		for _, s := range set {
			tenant = append(tenant, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range admin {
		if err := s.sub.Send(encoded); err != nil {
			h.Unsubscribe(s.id, s.kind, s.tenantID)
		}
	}
	for _, s := range tenant {
		if err := s.sub.Send(encoded); err != nil {
			h.Unsubscribe(s.id, s.kind, s.tenantID)
		}
	}
}
