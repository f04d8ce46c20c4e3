// Package sink implements spec §4.8: a fire-and-forget POST of blocked
// events to the control plane. Grounded on original_source/services.py's
// log_security_event (POST with timeout, never raises to the caller).
package sink

import (
	"context"

	"go.uber.org/zap"

	"wafgateway/internal/core"
)

// Emitter is the subset of the control-plane client the sink needs.
type Emitter interface {
	EmitSecurityEvent(ctx context.Context, event core.SecurityEvent) error
}

// Sink is the Security-event Sink component.
type Sink struct {
	emitter Emitter
	log     *zap.SugaredLogger
}

// New builds a Sink posting through emitter.
func New(emitter Emitter, log *zap.SugaredLogger) *Sink {
	return &Sink{emitter: emitter, log: log}
}

// Emit posts event. Failures are logged at warn and never propagated;
// callers should invoke this in its own goroutine so it is never on the
// request's critical path.
func (s *Sink) Emit(ctx context.Context, event core.SecurityEvent) {
	if err := s.emitter.EmitSecurityEvent(ctx, event); err != nil {
		s.log.Warnw("security-event sink: emit failed", "host", event.ClientHost, "error", err)
	}
}
