package jit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeApplier struct {
	mu          sync.Mutex
	applied     []string
	removed     []string
	applyErr    error
	removeErr   error
	removeCalls int
}

func (f *fakeApplier) Apply(ctx context.Context, grant AccessGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, grant.GrantID)
	return nil
}

func (f *fakeApplier) Remove(ctx context.Context, grant AccessGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, grant.GrantID)
	return nil
}

func (f *fakeApplier) setRemoveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeErr = err
}

func newTestRegistry(t *testing.T, applier *fakeApplier, opts ...RegistryOption) *Registry {
	t.Helper()
	r, err := NewRegistry(applier, opts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRequestAccess(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	now := time.Unix(1_000_000, 0).UTC()
	r := newTestRegistry(t, applier, WithClock(func() time.Time { return now }))

	grantID, denied, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", 30*time.Minute, "incident 42")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if denied {
		t.Fatal("default policy should allow")
	}
	if grantID == "" {
		t.Fatal("expected a grant id")
	}

	grant, ok := r.Get(grantID)
	if !ok {
		t.Fatal("grant should be registered")
	}
	if !grant.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expiresAt = %v, want now+30m", grant.ExpiresAt)
	}
	if len(applier.applied) != 1 || applier.applied[0] != grantID {
		t.Fatalf("applier.applied = %v", applier.applied)
	}
}

func TestRequestAccessPolicyDenied(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	r := newTestRegistry(t, applier, WithPolicy(func(userID, resource, role string) bool {
		return role != "admin"
	}))

	grantID, denied, err := r.RequestAccess(ctx, "mallory", "prod-db", "admin", time.Minute, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if !denied {
		t.Fatal("expected policy denial")
	}
	if grantID != "" {
		t.Fatal("denied request must not return a grant id")
	}
	if len(applier.applied) != 0 {
		t.Fatal("denied request must perform no side effect")
	}
	if len(r.ListActive()) != 0 {
		t.Fatal("denied request must register nothing")
	}
}

func TestRequestAccessApplyFailure(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{applyErr: errors.New("iam is down")}
	r := newTestRegistry(t, applier)

	_, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", time.Minute, "")
	if !errors.Is(err, ErrApplier) {
		t.Fatalf("got %v, want ErrApplier", err)
	}
	// Fail closed: nothing registered without a successful application.
	if len(r.ListActive()) != 0 {
		t.Fatal("apply failure must not register the grant")
	}
}

func TestRequestAccessValidation(t *testing.T) {
	r := newTestRegistry(t, &fakeApplier{})
	cases := []struct {
		name                 string
		user, resource, role string
	}{
		{"empty_user", "", "db", "admin"},
		{"empty_resource", "alice", "", "admin"},
		{"empty_role", "alice", "db", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := r.RequestAccess(context.Background(), tc.user, tc.resource, tc.role, time.Minute, "")
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRevokeAccess(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	r := newTestRegistry(t, applier)

	grantID, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", time.Hour, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if err := r.RevokeAccess(ctx, grantID); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if _, ok := r.Get(grantID); ok {
		t.Fatal("grant should be gone after revoke")
	}
	if len(applier.removed) != 1 {
		t.Fatalf("remove invoked %d times, want 1", len(applier.removed))
	}

	// Unknown id is an idempotent no-op.
	if err := r.RevokeAccess(ctx, grantID); err != nil {
		t.Fatalf("second revoke should be a no-op, got %v", err)
	}
}

func TestRevokeAccessRemoveFailure(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	r := newTestRegistry(t, applier)

	grantID, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", time.Hour, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	applier.setRemoveErr(errors.New("iam is down"))
	if err := r.RevokeAccess(ctx, grantID); !errors.Is(err, ErrApplier) {
		t.Fatalf("got %v, want ErrApplier", err)
	}
	// Grant stays registered so the sweep can retry.
	if _, ok := r.Get(grantID); !ok {
		t.Fatal("grant must remain registered after failed removal")
	}
}

func TestCleanupCycleRevokesExpired(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	now := time.Unix(1_000_000, 0).UTC()
	r := newTestRegistry(t, applier, WithClock(func() time.Time { return now }))

	expiredID, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", 0, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	liveID, _, err := r.RequestAccess(ctx, "bob", "staging-db", "reader", time.Hour, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	removed := r.RunCleanupCycle(ctx, now)
	if removed != 1 {
		t.Fatalf("removed %d grants, want 1", removed)
	}
	if _, ok := r.Get(expiredID); ok {
		t.Fatal("expired grant should be gone")
	}
	if _, ok := r.Get(liveID); !ok {
		t.Fatal("live grant must survive the sweep")
	}
	if len(applier.removed) != 1 || applier.removed[0] != expiredID {
		t.Fatalf("applier.removed = %v, want exactly the expired grant", applier.removed)
	}

	// Repeated cycles are safe and do nothing more.
	if again := r.RunCleanupCycle(ctx, now); again != 0 {
		t.Fatalf("second cycle removed %d grants, want 0", again)
	}
}

func TestCleanupCycleRetriesFailedRemoval(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	now := time.Unix(1_000_000, 0).UTC()
	r := newTestRegistry(t, applier, WithClock(func() time.Time { return now }))

	grantID, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", 0, "")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	applier.setRemoveErr(errors.New("iam is down"))
	if removed := r.RunCleanupCycle(ctx, now); removed != 0 {
		t.Fatalf("failed removal counted as removed: %d", removed)
	}
	if _, ok := r.Get(grantID); !ok {
		t.Fatal("grant must stay registered after failed removal")
	}

	applier.setRemoveErr(nil)
	if removed := r.RunCleanupCycle(ctx, now); removed != 1 {
		t.Fatalf("retry cycle removed %d grants, want 1", removed)
	}
	if _, ok := r.Get(grantID); ok {
		t.Fatal("grant should be gone after successful retry")
	}
	if applier.removeCalls != 2 {
		t.Fatalf("remove attempted %d times, want 2", applier.removeCalls)
	}
}

func TestSweeperRunsCycles(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{}
	r := newTestRegistry(t, applier)

	if _, _, err := r.RequestAccess(ctx, "alice", "prod-db", "admin", 0, ""); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	sweeper := NewSweeper(r, 10*time.Millisecond)
	sweeper.Start(ctx)
	defer sweeper.Close()

	deadline := time.After(2 * time.Second)
	for {
		if len(r.ListActive()) == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not revoke the expired grant in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
