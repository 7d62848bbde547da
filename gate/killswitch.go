package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// KillSwitch is the process-wide emergency halt flag. While active, every
// non-privileged Submit is rejected before classification or persistence.
type KillSwitch interface {
	Activate() error
	Deactivate() error
	IsActive() bool
}

// MemoryKillSwitch is the default single-process implementation. Inactive at
// startup.
type MemoryKillSwitch struct {
	active atomic.Bool
}

func (k *MemoryKillSwitch) Activate() error {
	k.active.Store(true)
	return nil
}

func (k *MemoryKillSwitch) Deactivate() error {
	k.active.Store(false)
	return nil
}

func (k *MemoryKillSwitch) IsActive() bool {
	return k.active.Load()
}

type killSwitchFile struct {
	Version   int       `json:"version"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileKillSwitch persists the flag as a small JSON file so a CLI invocation
// and a running daemon observe the same state. Reads go to disk on every
// IsActive call; the flag is checked once per Submit, not on a hot loop.
type FileKillSwitch struct {
	path string

	mu sync.Mutex
}

func NewFileKillSwitch(path string) (*FileKillSwitch, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing kill switch path")
	}
	return &FileKillSwitch{path: path}, nil
}

func (k *FileKillSwitch) Activate() error   { return k.write(true) }
func (k *FileKillSwitch) Deactivate() error { return k.write(false) }

// IsActive treats a missing or unreadable file as inactive: the default
// state at startup is "not halted", and a corrupt flag file must not brick
// the gate.
func (k *FileKillSwitch) IsActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, err := os.ReadFile(k.path)
	if err != nil {
		return false
	}
	var f killSwitchFile
	if err := json.Unmarshal(b, &f); err != nil {
		return false
	}
	return f.Active
}

func (k *FileKillSwitch) write(active bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	dir := filepath.Dir(k.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	b, err := json.Marshal(killSwitchFile{
		Version:   1,
		Active:    active,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, k.path)
}
