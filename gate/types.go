package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type RiskTier string

const (
	TierSafe     RiskTier = "safe"
	TierModerate RiskTier = "moderate"
	TierCritical RiskTier = "critical"
)

// Severity orders tiers: safe < moderate < critical. Unknown tiers sort
// above critical so a corrupted value is never treated as safe.
func (t RiskTier) Severity() int {
	switch t {
	case TierSafe:
		return 0
	case TierModerate:
		return 1
	case TierCritical:
		return 2
	default:
		return 3
	}
}

type GateStatus string

const (
	StatusExecuting GateStatus = "executing"
	StatusPaused    GateStatus = "paused"
	StatusRejected  GateStatus = "rejected"
)

// GateDecision is the synchronous outcome of a Submit call. ActionID is set
// only when Status is StatusPaused.
type GateDecision struct {
	Status   GateStatus
	ActionID string
	RiskTier RiskTier
	Reason   string
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// Terminal reports whether no further status transitions are permitted.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalDenied
}

// ApprovalRequest is the durable record of one suspended action. RiskTier is
// the classification at creation time and is never recomputed; an approval
// covers the action as it was classified, not as current policy would
// classify it.
type ApprovalRequest struct {
	ActionID   string         `json:"action_id"`
	AgentID    string         `json:"agent_id"`
	ToolName   string         `json:"tool_name"`
	Params     map[string]any `json:"params,omitempty"`
	RiskTier   RiskTier       `json:"risk_tier"`
	Status     ApprovalStatus `json:"status"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Feedback   string         `json:"feedback,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateAction   = errors.New("duplicate action id")
	ErrNotFound          = errors.New("approval not found")
	ErrInvalidTransition = errors.New("approval already resolved")
)

// CloneParams deep-copies a params map through a JSON round trip so the
// stored record cannot be altered by later mutation of the caller's map.
// Values that do not survive JSON encoding are replaced by their string
// form rather than dropped.
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		var cv any
		if err := json.Unmarshal(b, &cv); err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		out[k] = cv
	}
	return out
}

func nowUTC() time.Time { return time.Now().UTC() }

func newEventID(agentID, toolName string, ts time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s", agentID, toolName, ts.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return "evt_" + hex.EncodeToString(sum[:8])
}
