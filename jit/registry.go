package jit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks active time-boxed grants. All mutations hold the registry
// lock only while touching the table, never across a PermissionApplier call.
//
// Removal ordering: a grant never disappears from the table before its
// external removal has been attempted. When removal fails, the grant stays
// registered and the next cleanup cycle retries, giving at-least-once
// removal semantics.
type Registry struct {
	applier PermissionApplier
	policy  PolicyPredicate
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	grants map[string]AccessGrant
}

type RegistryOption func(*Registry)

func WithPolicy(p PolicyPredicate) RegistryOption {
	return func(r *Registry) {
		if p != nil {
			r.policy = p
		}
	}
}

func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(applier PermissionApplier, opts ...RegistryOption) (*Registry, error) {
	if applier == nil {
		return nil, fmt.Errorf("nil permission applier")
	}
	r := &Registry{
		applier: applier,
		policy:  AllowAll,
		log:     slog.Default(),
		now:     time.Now,
		newID:   func() string { return "grt_" + uuid.NewString() },
		grants:  make(map[string]AccessGrant),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RequestAccess issues a time-boxed grant. A policy denial is a normal
// outcome (denied=true, nil error), not a fault. The external Apply runs
// before the grant is registered: on Apply failure nothing is recorded, so
// no permission ever exists in the table without a corresponding successful
// application.
func (r *Registry) RequestAccess(ctx context.Context, userID, resource, role string, duration time.Duration, reason string) (grantID string, denied bool, err error) {
	userID = strings.TrimSpace(userID)
	resource = strings.TrimSpace(resource)
	role = strings.TrimSpace(role)
	if userID == "" || resource == "" || role == "" {
		return "", false, fmt.Errorf("%w: user id, resource and role are required", ErrInvalidInput)
	}
	if duration < 0 {
		return "", false, fmt.Errorf("%w: negative duration", ErrInvalidInput)
	}

	if !r.policy(userID, resource, role) {
		r.log.Info("access denied by policy",
			"user_id", userID, "resource", resource, "role", role)
		return "", true, nil
	}

	now := r.now().UTC()
	grant := AccessGrant{
		GrantID:   r.newID(),
		UserID:    userID,
		Resource:  resource,
		Role:      role,
		Reason:    strings.TrimSpace(reason),
		GrantedAt: now,
		ExpiresAt: now.Add(duration),
	}

	if err := r.applier.Apply(ctx, grant); err != nil {
		return "", false, fmt.Errorf("%w: apply %s: %v", ErrApplier, grant.GrantID, err)
	}

	r.mu.Lock()
	r.grants[grant.GrantID] = grant
	r.mu.Unlock()

	r.log.Info("access granted",
		"grant_id", grant.GrantID,
		"user_id", userID,
		"resource", resource,
		"role", role,
		"expires_at", grant.ExpiresAt,
	)
	return grant.GrantID, false, nil
}

// RevokeAccess removes a grant ahead of its expiry. Unknown grant ids are a
// no-op. On Remove failure the grant stays registered for the sweep to
// retry.
func (r *Registry) RevokeAccess(ctx context.Context, grantID string) error {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return fmt.Errorf("%w: missing grant id", ErrInvalidInput)
	}

	r.mu.Lock()
	grant, ok := r.grants[grantID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := r.applier.Remove(ctx, grant); err != nil {
		r.log.Error("permission removal failed, grant kept for retry",
			"grant_id", grantID, "error", err)
		return fmt.Errorf("%w: remove %s: %v", ErrApplier, grantID, err)
	}

	r.mu.Lock()
	delete(r.grants, grantID)
	r.mu.Unlock()

	r.log.Info("access revoked", "grant_id", grantID)
	return nil
}

// RunCleanupCycle revokes every grant expired as of now and returns how many
// were removed. The expired set is snapshotted under the lock, then acted on
// outside it; failed removals stay registered for the next cycle. Safe to
// call repeatedly and concurrently with RequestAccess/RevokeAccess.
func (r *Registry) RunCleanupCycle(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	var expired []AccessGrant
	for _, grant := range r.grants {
		if !grant.ExpiresAt.After(now) {
			expired = append(expired, grant)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, grant := range expired {
		if err := r.applier.Remove(ctx, grant); err != nil {
			r.log.Error("expired grant removal failed, will retry next cycle",
				"grant_id", grant.GrantID, "error", err)
			continue
		}
		r.mu.Lock()
		delete(r.grants, grant.GrantID)
		r.mu.Unlock()
		removed++
		r.log.Info("expired grant revoked",
			"grant_id", grant.GrantID,
			"user_id", grant.UserID,
			"resource", grant.Resource,
		)
	}
	return removed
}

// ListActive returns a snapshot of all registered grants, oldest first.
func (r *Registry) ListActive() []AccessGrant {
	r.mu.Lock()
	out := make([]AccessGrant, 0, len(r.grants))
	for _, grant := range r.grants {
		out = append(out, grant)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out
}

// Get returns a grant and whether it is registered.
func (r *Registry) Get(grantID string) (AccessGrant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant, ok := r.grants[strings.TrimSpace(grantID)]
	return grant, ok
}
