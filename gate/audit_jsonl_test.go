package gate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONLAuditSinkEmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	events := []AuditEvent{
		{AgentID: "agent-1", ToolName: "get_logs", Status: StatusExecuting, RiskTier: TierSafe},
		{AgentID: "agent-1", ToolName: "delete_database", Status: StatusPaused, RiskTier: TierCritical, ActionID: "act_1"},
	}
	for _, e := range events {
		if err := sink.Emit(ctx, e); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var got []AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad jsonl line: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].EventID == "" || got[0].Timestamp.IsZero() {
		t.Fatal("sink must fill event id and timestamp")
	}
	if got[1].ActionID != "act_1" || got[1].RiskTier != TierCritical {
		t.Fatalf("second event mangled: %+v", got[1])
	}
}

func TestJSONLAuditSinkRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	// Cap smaller than a single event so every write forces rotation.
	sink, err := NewJSONLAuditSink(path, 100)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := sink.Emit(ctx, AuditEvent{AgentID: "agent-1", ToolName: "get_logs", Status: StatusExecuting}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated files, found %d entries", len(entries))
	}
}
