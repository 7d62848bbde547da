package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryKillSwitch(t *testing.T) {
	k := &MemoryKillSwitch{}
	if k.IsActive() {
		t.Fatal("kill switch must start inactive")
	}
	if err := k.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !k.IsActive() {
		t.Fatal("expected active after Activate")
	}
	if err := k.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if k.IsActive() {
		t.Fatal("expected inactive after Deactivate")
	}
}

func TestFileKillSwitchRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killswitch.json")
	k, err := NewFileKillSwitch(path)
	if err != nil {
		t.Fatalf("NewFileKillSwitch: %v", err)
	}

	if k.IsActive() {
		t.Fatal("missing file must read as inactive")
	}
	if err := k.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !k.IsActive() {
		t.Fatal("expected active after Activate")
	}

	// A second instance on the same path observes the state.
	k2, err := NewFileKillSwitch(path)
	if err != nil {
		t.Fatalf("NewFileKillSwitch: %v", err)
	}
	if !k2.IsActive() {
		t.Fatal("second instance should observe the persisted flag")
	}

	if err := k2.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if k.IsActive() {
		t.Fatal("first instance should observe deactivation")
	}
}

func TestFileKillSwitchCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killswitch.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	k, err := NewFileKillSwitch(path)
	if err != nil {
		t.Fatalf("NewFileKillSwitch: %v", err)
	}
	if k.IsActive() {
		t.Fatal("corrupt flag file must read as inactive")
	}
}
