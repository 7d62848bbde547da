// Package jit manages short-lived elevated permissions: time-boxed grants
// applied to an external enforcement backend and automatically revoked once
// they expire.
package jit

import (
	"context"
	"errors"
	"time"
)

// AccessGrant is one active elevated permission. A grant is live while
// now < ExpiresAt and it has not been explicitly revoked.
type AccessGrant struct {
	GrantID   string    `json:"grant_id"`
	UserID    string    `json:"user_id"`
	Resource  string    `json:"resource"`
	Role      string    `json:"role"`
	Reason    string    `json:"reason,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PermissionApplier is the port to the real enforcement backend (cloud IAM,
// RBAC). Both operations are fallible and must be safe to retry; Remove in
// particular is retried by the cleanup cycle until it succeeds.
type PermissionApplier interface {
	Apply(ctx context.Context, grant AccessGrant) error
	Remove(ctx context.Context, grant AccessGrant) error
}

// PolicyPredicate decides whether a grant may be issued at all. It stands in
// for organizational policy; the default allows everything.
type PolicyPredicate func(userID, resource, role string) bool

func AllowAll(userID, resource, role string) bool { return true }

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrApplier wraps failures of the external enforcement backend.
	ErrApplier = errors.New("permission applier failed")
)
