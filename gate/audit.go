package gate

import (
	"context"
	"time"
)

// AuditEvent records one gate decision: a submit outcome or a human
// resolution. The field names are the compatibility surface for any
// dashboard or CLI reading the log.
type AuditEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"ts"`

	AgentID  string `json:"agent_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	ActionID string `json:"action_id,omitempty"`

	RiskTier RiskTier   `json:"risk_tier,omitempty"`
	Status   GateStatus `json:"status,omitempty"`
	Reason   string     `json:"reason,omitempty"`

	Decision string `json:"decision,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}

// NopAuditSink discards events.
type NopAuditSink struct{}

func (NopAuditSink) Emit(ctx context.Context, e AuditEvent) error { return nil }
func (NopAuditSink) Close() error                                 { return nil }
