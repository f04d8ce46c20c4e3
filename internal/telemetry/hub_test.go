package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wafgateway/internal/core"
)

func noopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type recordingSub struct {
	mu       sync.Mutex
	messages [][]byte
	fail     bool
}

func (r *recordingSub) Send(message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errSendFailed
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

var errSendFailed = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send failed" }

// Scenario 2 from spec §8: decisions broadcast to both admin and the
// specific tenant's subscribers.
func TestHub_BroadcastReachesAdminAndTenant(t *testing.T) {
	h := New(noopLogger())
	admin := &recordingSub{}
	tenantSub := &recordingSub{}
	otherTenantSub := &recordingSub{}

	h.Subscribe("a1", core.SubscriberAdmin, "", admin)
	h.Subscribe("t1", core.SubscriberTenant, "demo.local", tenantSub)
	h.Subscribe("t2", core.SubscriberTenant, "other.local", otherTenantSub)

	h.Broadcast("demo.local", RequestEvent{Host: "demo.local", WAFBlocked: false})

	require.Equal(t, 2, admin.count(), "1 snapshot + 1 event")
	require.Equal(t, 2, tenantSub.count())
	require.Equal(t, 1, otherTenantSub.count(), "other tenant only gets its own snapshot")
}

func TestHub_FailedSendDisconnectsOnlyThatSubscriber(t *testing.T) {
	h := New(noopLogger())
	good := &recordingSub{}
	bad := &recordingSub{fail: true}

	h.Subscribe("good", core.SubscriberAdmin, "", good)
	h.Subscribe("bad", core.SubscriberAdmin, "", bad)

	h.Broadcast("demo.local", RequestEvent{})

	require.Equal(t, 2, good.count())
	require.Equal(t, 1, h.activeConnections(), "the failing subscriber should have been removed")
}

func TestHub_RollingRPS(t *testing.T) {
	h := New(noopLogger())
	now := time.Now()
	for i := 0; i < 10; i++ {
		h.RecordRequest(now)
	}
	require.InDelta(t, 2.0, h.RollingRPS(), 0.01)
}
