package gate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteApprovalStore persists approval requests in a single SQLite table.
// Records are never physically deleted; resolved rows stay behind as the
// audit trail. Single-shot resolution is enforced in SQL: the UPDATE only
// matches rows still in pending status, so two racing decisions cannot both
// win.
type SQLiteApprovalStore struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteApprovalStore(dsn string) (*SQLiteApprovalStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &SQLiteApprovalStore{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteApprovalStore) Create(ctx context.Context, req ApprovalRequest) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	id := strings.TrimSpace(req.ActionID)
	if id == "" {
		return fmt.Errorf("%w: missing action id", ErrInvalidInput)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = ApprovalPending
	}

	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO approval_requests (
  action_id, agent_id, tool_name, params_json,
  risk_tier, status, reasoning, feedback,
  created_at_unix, resolved_at_unix
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, id, strings.TrimSpace(req.AgentID), strings.TrimSpace(req.ToolName), string(paramsJSON),
		string(req.RiskTier), string(req.Status), req.Reasoning, req.Feedback,
		req.CreatedAt.Unix(), nullTimeUnix(req.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateAction, id)
		}
		return err
	}
	return nil
}

func (s *SQLiteApprovalStore) Get(ctx context.Context, actionID string) (ApprovalRequest, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return ApprovalRequest{}, false, err
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ApprovalRequest{}, false, nil
	}

	rec, err := scanRequest(s.db.QueryRowContext(ctx, selectRequest+` WHERE action_id = ?`, actionID))
	if err == sql.ErrNoRows {
		return ApprovalRequest{}, false, nil
	}
	if err != nil {
		return ApprovalRequest{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteApprovalStore) Resolve(ctx context.Context, actionID string, status ApprovalStatus, feedback string) (ApprovalRequest, error) {
	if err := s.ensureOpen(); err != nil {
		return ApprovalRequest{}, err
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ApprovalRequest{}, fmt.Errorf("%w: missing action id", ErrInvalidInput)
	}
	if !status.Terminal() {
		return ApprovalRequest{}, fmt.Errorf("%w: status %q is not terminal", ErrInvalidInput, status)
	}

	now := time.Now().UTC().Unix()
	res, err := s.db.ExecContext(ctx, `
UPDATE approval_requests
SET status = ?, feedback = ?, resolved_at_unix = ?
WHERE action_id = ? AND status = ?
`, string(status), feedback, now, actionID, string(ApprovalPending))
	if err != nil {
		return ApprovalRequest{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ApprovalRequest{}, err
	}
	if n == 0 {
		// Either the record does not exist or it is already terminal.
		rec, ok, err := s.Get(ctx, actionID)
		if err != nil {
			return ApprovalRequest{}, err
		}
		if !ok {
			return ApprovalRequest{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
		}
		return ApprovalRequest{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, actionID, rec.Status)
	}

	rec, ok, err := s.Get(ctx, actionID)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if !ok {
		return ApprovalRequest{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	return rec, nil
}

func (s *SQLiteApprovalStore) ListPending(ctx context.Context, limit int) ([]ApprovalRequest, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, selectRequest+`
WHERE status = ?
ORDER BY created_at_unix ASC
LIMIT ?`, string(ApprovalPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteApprovalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

const selectRequest = `
SELECT
  action_id, agent_id, tool_name, params_json,
  risk_tier, status, reasoning, feedback,
  created_at_unix, resolved_at_unix
FROM approval_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (ApprovalRequest, error) {
	var (
		rec            ApprovalRequest
		paramsJSON     string
		riskTier       string
		status         string
		createdAtUnix  int64
		resolvedAtUnix sql.NullInt64
	)
	err := row.Scan(
		&rec.ActionID, &rec.AgentID, &rec.ToolName, &paramsJSON,
		&riskTier, &status, &rec.Reasoning, &rec.Feedback,
		&createdAtUnix, &resolvedAtUnix,
	)
	if err != nil {
		return ApprovalRequest{}, err
	}
	rec.RiskTier = RiskTier(riskTier)
	rec.Status = ApprovalStatus(status)
	rec.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if resolvedAtUnix.Valid {
		t := time.Unix(resolvedAtUnix.Int64, 0).UTC()
		rec.ResolvedAt = &t
	}
	if paramsJSON != "" && paramsJSON != "null" {
		_ = json.Unmarshal([]byte(paramsJSON), &rec.Params)
	}
	return rec, nil
}

func (s *SQLiteApprovalStore) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	s.db = db
	if err := s.applyPragmas(); err != nil {
		return err
	}
	return s.migrate()
}

func (s *SQLiteApprovalStore) ensureOpen() error {
	if s.db != nil {
		return nil
	}
	return s.open()
}

func (s *SQLiteApprovalStore) applyPragmas() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteApprovalStore) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS approval_requests (
  action_id TEXT PRIMARY KEY,
  agent_id TEXT NOT NULL,
  tool_name TEXT NOT NULL,
  params_json TEXT,
  risk_tier TEXT NOT NULL,
  status TEXT NOT NULL,
  reasoning TEXT,
  feedback TEXT,
  created_at_unix INTEGER NOT NULL,
  resolved_at_unix INTEGER
);
CREATE INDEX IF NOT EXISTS idx_approval_requests_status ON approval_requests(status);
`)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}

func nullTimeUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}
