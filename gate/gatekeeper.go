package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrivilegeChecker reports whether an agent may bypass the kill switch.
// The concrete authorization mechanism lives outside this core; the default
// treats every caller as non-privileged.
type PrivilegeChecker func(agentID string) bool

// Decision values accepted by Resolve.
const (
	DecisionApprove = "APPROVE"
	DecisionDeny    = "DENY"
)

// Resolution outcomes reported to the decision channel.
const (
	OutcomeResumed = "resumed"
	OutcomeBlocked = "blocked"
)

// Resolution is the result of a human decision on a paused action. Outcome
// is OutcomeResumed for approvals and OutcomeBlocked for denials; the
// underlying effect is performed by whatever consumer observes the approved
// record, never by Resolve itself.
type Resolution struct {
	Outcome string
	Request ApprovalRequest
}

// Gatekeeper decides, for each proposed agent action, whether it executes
// immediately, suspends pending human approval, or is rejected outright.
type Gatekeeper struct {
	classifier RiskClassifier
	store      ApprovalStore
	kill       KillSwitch
	limiter    RateLimiter
	audit      AuditSink
	privileged PrivilegeChecker
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
}

type GatekeeperOption func(*Gatekeeper)

func WithClassifier(c RiskClassifier) GatekeeperOption {
	return func(g *Gatekeeper) {
		if c != nil {
			g.classifier = c
		}
	}
}

func WithKillSwitch(k KillSwitch) GatekeeperOption {
	return func(g *Gatekeeper) {
		if k != nil {
			g.kill = k
		}
	}
}

func WithRateLimiter(l RateLimiter) GatekeeperOption {
	return func(g *Gatekeeper) {
		if l != nil {
			g.limiter = l
		}
	}
}

func WithAuditSink(a AuditSink) GatekeeperOption {
	return func(g *Gatekeeper) {
		if a != nil {
			g.audit = a
		}
	}
}

func WithPrivilegeChecker(p PrivilegeChecker) GatekeeperOption {
	return func(g *Gatekeeper) {
		if p != nil {
			g.privileged = p
		}
	}
}

func WithLogger(log *slog.Logger) GatekeeperOption {
	return func(g *Gatekeeper) {
		if log != nil {
			g.log = log
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) GatekeeperOption {
	return func(g *Gatekeeper) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGatekeeper(store ApprovalStore, opts ...GatekeeperOption) (*Gatekeeper, error) {
	if store == nil {
		return nil, fmt.Errorf("nil approval store")
	}
	g := &Gatekeeper{
		classifier: KeywordClassifier{},
		store:      store,
		kill:       &MemoryKillSwitch{},
		limiter:    NewTokenBucketLimiter(10, 1),
		audit:      NopAuditSink{},
		privileged: func(string) bool { return false },
		log:        slog.Default(),
		now:        time.Now,
		newID:      func() string { return "act_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Submit gates one proposed action. Rejections for the kill switch and rate
// limiting are normal decision outcomes with distinct reasons, not errors;
// an error return means the decision itself could not be made (bad input or
// a failing store).
func (g *Gatekeeper) Submit(ctx context.Context, agentID, toolName string, params map[string]any) (GateDecision, error) {
	agentID = strings.TrimSpace(agentID)
	toolName = strings.TrimSpace(toolName)
	if agentID == "" {
		return GateDecision{}, fmt.Errorf("%w: missing agent id", ErrInvalidInput)
	}
	if toolName == "" {
		return GateDecision{}, fmt.Errorf("%w: missing tool name", ErrInvalidInput)
	}

	if g.kill.IsActive() && !g.privileged(agentID) {
		dec := GateDecision{Status: StatusRejected, Reason: "system halted"}
		g.logDecision(ctx, agentID, toolName, dec)
		return dec, nil
	}

	if !g.limiter.Allow(agentID + ":" + toolName) {
		dec := GateDecision{Status: StatusRejected, Reason: "rate limited"}
		g.logDecision(ctx, agentID, toolName, dec)
		return dec, nil
	}

	tier := g.classifier.Classify(toolName, params)
	if tier == TierSafe {
		dec := GateDecision{Status: StatusExecuting, RiskTier: tier, Reason: "safe action, no approval required"}
		g.logDecision(ctx, agentID, toolName, dec)
		return dec, nil
	}

	req := ApprovalRequest{
		ActionID:  g.newID(),
		AgentID:   agentID,
		ToolName:  toolName,
		Params:    CloneParams(params),
		RiskTier:  tier,
		Status:    ApprovalPending,
		Reasoning: fmt.Sprintf("%s-risk action %q requires human approval", tier, toolName),
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.Create(ctx, req); err != nil {
		return GateDecision{}, fmt.Errorf("persist approval request: %w", err)
	}

	dec := GateDecision{
		Status:   StatusPaused,
		ActionID: req.ActionID,
		RiskTier: tier,
		Reason:   fmt.Sprintf("paused: %s risk, awaiting approval (action %s)", tier, req.ActionID),
	}
	g.logDecision(ctx, agentID, toolName, dec)
	return dec, nil
}

// Resolve applies a human decision to a paused action. It only flips the
// durable record; observing the approved record and performing the effect is
// the consumer's job, and a denial is a permanent block.
func (g *Gatekeeper) Resolve(ctx context.Context, actionID, decision, notes string) (Resolution, error) {
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return Resolution{}, fmt.Errorf("%w: missing action id", ErrInvalidInput)
	}

	var status ApprovalStatus
	var outcome string
	switch strings.ToUpper(strings.TrimSpace(decision)) {
	case DecisionApprove:
		status, outcome = ApprovalApproved, OutcomeResumed
	case DecisionDeny:
		status, outcome = ApprovalDenied, OutcomeBlocked
	default:
		return Resolution{}, fmt.Errorf("%w: decision must be %s or %s", ErrInvalidInput, DecisionApprove, DecisionDeny)
	}

	rec, err := g.store.Resolve(ctx, actionID, status, notes)
	if err != nil {
		return Resolution{}, err
	}

	g.log.Info("approval resolved",
		"action_id", actionID,
		"status", string(status),
		"outcome", outcome,
	)
	_ = g.audit.Emit(ctx, AuditEvent{
		Timestamp: g.now().UTC(),
		AgentID:   rec.AgentID,
		ToolName:  rec.ToolName,
		ActionID:  actionID,
		RiskTier:  rec.RiskTier,
		Decision:  string(status),
		Notes:     notes,
	})
	return Resolution{Outcome: outcome, Request: rec}, nil
}

// Pending lists unresolved approval requests, oldest first.
func (g *Gatekeeper) Pending(ctx context.Context, limit int) ([]ApprovalRequest, error) {
	return g.store.ListPending(ctx, limit)
}

func (g *Gatekeeper) logDecision(ctx context.Context, agentID, toolName string, dec GateDecision) {
	g.log.Info("gate decision",
		"agent_id", agentID,
		"tool_name", toolName,
		"status", string(dec.Status),
		"risk_tier", string(dec.RiskTier),
		"action_id", dec.ActionID,
		"reason", dec.Reason,
	)
	_ = g.audit.Emit(ctx, AuditEvent{
		Timestamp: g.now().UTC(),
		AgentID:   agentID,
		ToolName:  toolName,
		ActionID:  dec.ActionID,
		RiskTier:  dec.RiskTier,
		Status:    dec.Status,
		Reason:    dec.Reason,
	})
}
