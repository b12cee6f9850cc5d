// Package lease provides lock-free distributed mutual exclusion through
// named, TTL-bound lease rows.
//
// Acquisition is a single conditional round trip that never blocks: claim
// the row when it is expired (or already ours, with reentry), otherwise
// lose. A crashed holder needs no cleanup; its lease simply expires and is
// reclaimed by the next caller.
package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/corpsim/corpsim/internal/store"
)

// Lease names used by the worker fleet.
const (
	// Scheduler is held by the single instance enqueuing periodic tick
	// jobs; long TTL, renewed on a heartbeat well inside it.
	Scheduler = "scheduler"
	// Processor is held for the duration of one tick-advance call,
	// guaranteeing at most one in-flight advance across the fleet.
	Processor = "tick-processor"
)

// ErrUnavailable is returned by Hold when another owner holds the lease.
// Safe to treat as "try again later"; nothing was mutated.
var ErrUnavailable = errors.New("lease: held by another owner")

// Manager acquires and releases leases on behalf of one owner.
type Manager struct {
	store   store.Store
	ownerID string
	logger  *slog.Logger
}

// NewManager creates a manager for ownerID.
func NewManager(st store.Store, ownerID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, ownerID: ownerID, logger: logger}
}

// OwnerID returns the owner this manager acquires as.
func (m *Manager) OwnerID() string { return m.ownerID }

// TryAcquire attempts one non-blocking acquisition.
func (m *Manager) TryAcquire(ctx context.Context, name string, ttl time.Duration, allowReentry bool) (bool, error) {
	ok, err := m.store.TryAcquireLease(ctx, name, m.ownerID, ttl, allowReentry)
	if err != nil {
		return false, err
	}
	if ok {
		m.logger.Debug("lease acquired", "lease", name, "owner_id", m.ownerID, "ttl", ttl)
	}
	return ok, nil
}

// Hold acquires with reentry or fails with ErrUnavailable. The returned
// release func deletes the lease if this owner still holds it.
func (m *Manager) Hold(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	ok, err := m.TryAcquire(ctx, name, ttl, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnavailable
	}
	return func() {
		if err := m.Release(context.WithoutCancel(ctx), name); err != nil {
			m.logger.Warn("lease release failed", "lease", name, "error", err)
		}
	}, nil
}

// Renew extends a lease this owner already holds.
func (m *Manager) Renew(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return m.store.TryAcquireLease(ctx, name, m.ownerID, ttl, true)
}

// Release deletes the lease only if this owner still holds it.
func (m *Manager) Release(ctx context.Context, name string) error {
	return m.store.ReleaseLease(ctx, name, m.ownerID)
}
