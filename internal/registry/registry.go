// Package registry tracks attached frontends in an in-memory map:
// register/unregister, heartbeat refresh, and periodic liveness sweeps.
package registry

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

// Registry is the frontend registry's in-memory store. All methods are
// safe for concurrent use: IPC handlers call Register, Heartbeat and
// Unregister from their own goroutines, and the daemon's lifecycle
// goroutine calls Sweep.
type Registry struct {
	mu               sync.RWMutex
	frontends        map[string]model.FrontendRegistration
	heartbeatTimeout time.Duration

	// pidAlive is overridable in tests; defaults to a real os.FindProcess +
	// signal 0 probe.
	pidAlive func(pid int) bool
}

func New(heartbeatTimeout time.Duration) *Registry {
	return &Registry{
		frontends:        make(map[string]model.FrontendRegistration),
		heartbeatTimeout: heartbeatTimeout,
		pidAlive:         processAlive,
	}
}

// Register adds a new frontend under the caller-supplied frontendID. An
// empty or unrecognized notifyPreference defaults to NotifySignificant.
// Registering an id that is already present returns jasperr.AlreadyRegistered
// and leaves the existing registration untouched.
func (r *Registry) Register(frontendID string, pid int, notifyPreference model.NotifyPreference) (model.FrontendRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.frontends[frontendID]; exists {
		return model.FrontendRegistration{}, jasperr.New(jasperr.AlreadyRegistered, "registry.Register", "frontend id already registered")
	}

	switch notifyPreference {
	case model.NotifyAll, model.NotifySignificant, model.NotifyNone:
	default:
		notifyPreference = model.NotifySignificant
	}

	now := time.Now()
	reg := model.FrontendRegistration{
		ID:               frontendID,
		PID:              pid,
		RegisteredAt:     now,
		LastHeartbeat:    now,
		NotifyPreference: notifyPreference,
	}
	r.frontends[reg.ID] = reg
	return reg, nil
}

// Get returns a single registration by id, used by the IPC hub to decide
// whether a WebSocket connection should receive a given signal.
func (r *Registry) Get(id string) (model.FrontendRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.frontends[id]
	return reg, ok
}

// Unregister removes a frontend immediately, used for clean shutdown as
// opposed to liveness-sweep eviction.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.frontends[id]; !ok {
		return jasperr.New(jasperr.FrontendUnknown, "registry.Unregister", "unknown frontend id")
	}
	delete(r.frontends, id)
	return nil
}

// Heartbeat refreshes a frontend's liveness timestamp.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.frontends[id]
	if !ok {
		return jasperr.New(jasperr.FrontendUnknown, "registry.Heartbeat", "unknown frontend id")
	}
	reg.LastHeartbeat = time.Now()
	r.frontends[id] = reg
	return nil
}

// ListActive returns every currently registered frontend, regardless of
// liveness; Sweep is what evicts stale entries.
func (r *Registry) ListActive() []model.FrontendRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FrontendRegistration, 0, len(r.frontends))
	for _, reg := range r.frontends {
		out = append(out, reg)
	}
	return out
}

// Sweep evicts every frontend that is not live: liveness requires both a
// heartbeat within the timeout and a still-running OS process, so a
// registration is swept the moment either condition fails (a stale
// heartbeat even from a still-running process, or a dead process even with
// a heartbeat that hasn't yet gone stale).
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var evicted []string
	for id, reg := range r.frontends {
		withinTimeout := now.Sub(reg.LastHeartbeat) < r.heartbeatTimeout
		if withinTimeout && r.pidAlive(reg.PID) {
			continue
		}
		delete(r.frontends, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// Count returns the number of currently registered frontends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frontends)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 is the standard
	// liveness probe that does not actually deliver a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
