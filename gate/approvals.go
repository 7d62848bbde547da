package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ApprovalStore is the durable, keyed source of truth for approval requests.
// Implementations must serialize writes per action id; a human decision
// racing a duplicate submission must never produce a lost update.
type ApprovalStore interface {
	// Create persists a new record. Fails with ErrDuplicateAction when the
	// action id already exists.
	Create(ctx context.Context, req ApprovalRequest) error

	// Get returns the record and whether it exists.
	Get(ctx context.Context, actionID string) (ApprovalRequest, bool, error)

	// Resolve flips a pending record to a terminal status, exactly once.
	// Fails with ErrNotFound for unknown ids and ErrInvalidTransition when
	// the record is already terminal. Returns the updated record.
	Resolve(ctx context.Context, actionID string, status ApprovalStatus, feedback string) (ApprovalRequest, error)

	// ListPending returns up to limit pending records, oldest first.
	ListPending(ctx context.Context, limit int) ([]ApprovalRequest, error)
}

// MemoryApprovalStore keeps records in a mutex-guarded map. It satisfies the
// same single-shot resolution contract as the SQLite store but loses state
// on restart; it exists for tests and ephemeral setups.
type MemoryApprovalStore struct {
	mu      sync.Mutex
	records map[string]ApprovalRequest
}

func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{records: make(map[string]ApprovalRequest)}
}

func (s *MemoryApprovalStore) Create(ctx context.Context, req ApprovalRequest) error {
	_ = ctx
	id := strings.TrimSpace(req.ActionID)
	if id == "" {
		return fmt.Errorf("%w: missing action id", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, id)
	}
	req.Params = CloneParams(req.Params)
	s.records[id] = req
	return nil
}

func (s *MemoryApprovalStore) Get(ctx context.Context, actionID string) (ApprovalRequest, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[strings.TrimSpace(actionID)]
	if !ok {
		return ApprovalRequest{}, false, nil
	}
	rec.Params = CloneParams(rec.Params)
	return rec, true, nil
}

func (s *MemoryApprovalStore) Resolve(ctx context.Context, actionID string, status ApprovalStatus, feedback string) (ApprovalRequest, error) {
	_ = ctx
	if !status.Terminal() {
		return ApprovalRequest{}, fmt.Errorf("%w: status %q is not terminal", ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(actionID)
	rec, ok := s.records[id]
	if !ok {
		return ApprovalRequest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status.Terminal() {
		return ApprovalRequest{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, rec.Status)
	}
	rec.Status = status
	rec.Feedback = feedback
	now := nowUTC()
	rec.ResolvedAt = &now
	s.records[id] = rec

	rec.Params = CloneParams(rec.Params)
	return rec, nil
}

func (s *MemoryApprovalStore) ListPending(ctx context.Context, limit int) ([]ApprovalRequest, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ApprovalRequest, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Status == ApprovalPending {
			rec.Params = CloneParams(rec.Params)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
