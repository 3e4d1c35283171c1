// Package capture models the physical capture device as an explicit,
// exclusively-owned resource. Only one capture session may be active at
// a time; acquiring a held guard fails fast instead of queueing.
package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/observability"
)

// Guard hands out at most one lease at a time. A lease expires on its
// own at the deadline so an abandoned session cannot wedge the device.
type Guard struct {
	mu       sync.Mutex
	holder   uuid.UUID
	deadline time.Time
}

func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire claims the capture device until deadline. It returns a
// lease token, or a CaptureBusy error if an unexpired lease is held.
func (g *Guard) TryAcquire(deadline time.Time) (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != uuid.Nil && time.Now().Before(g.deadline) {
		return uuid.Nil, errs.New(errs.CodeCaptureBusy, "capture device in use by another session")
	}
	if g.holder != uuid.Nil {
		// Previous holder expired without releasing.
		observability.ActiveCaptureSessions.Dec()
	}

	g.holder = uuid.New()
	g.deadline = deadline
	observability.ActiveCaptureSessions.Inc()
	return g.holder, nil
}

// Release frees the device. Releasing with a stale token is a no-op, so
// a session that already lost its lease to expiry cannot free someone
// else's.
func (g *Guard) Release(token uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != token {
		return
	}
	g.holder = uuid.Nil
	observability.ActiveCaptureSessions.Dec()
}

// Held reports whether token still owns an unexpired lease.
func (g *Guard) Held(token uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder == token && time.Now().Before(g.deadline)
}
