package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"autoengineer/internal/logging"
)

// ErrNotFound is returned when no execution has the requested call ID.
var ErrNotFound = errors.New("tool execution not found")

// ToolStore persists tool execution results to SQLite.
//
// Storage location: .autoeng/tools.db
//
// Cleanup strategies:
// - Age: drop executions older than a retention window
// - Size: keep the newest N rows, FIFO deletion beyond that
type ToolStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	now func() time.Time
}

// ToolExecution represents a single tool execution record.
type ToolExecution struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	SessionID  string    `json:"session_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	Input      string    `json:"input"` // JSON-encoded arguments
	Result     string    `json:"result"`
	Error      string    `json:"error,omitempty"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	ResultSize int       `json:"result_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToolStoreStats provides storage statistics.
type ToolStoreStats struct {
	TotalExecutions int            `json:"total_executions"`
	SuccessCount    int            `json:"success_count"`
	FailureCount    int            `json:"failure_count"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	ToolBreakdown   map[string]int `json:"tool_breakdown"` // Count by tool name
	Oldest          time.Time      `json:"oldest,omitempty"`
	Newest          time.Time      `json:"newest,omitempty"`
}

// NewToolStore opens (creating if needed) the store at dbPath and applies
// migrations. ":memory:" gives a private in-memory store.
func NewToolStore(dbPath string) (*ToolStore, error) {
	logging.StoreDebug("Initializing ToolStore at path: %s", dbPath)

	dsn := dbPath
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create ToolStore directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logging.StoreError("Failed to open ToolStore database at %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		logging.StoreError("Failed to migrate ToolStore schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logging.Store("ToolStore initialized at %s", dbPath)
	return &ToolStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database path the store was opened with.
func (s *ToolStore) Path() string { return s.dbPath }

// Store persists a tool execution record. A missing CallID is generated,
// a zero CreatedAt is set to now, and ResultSize defaults to len(Result).
// Storing an existing CallID replaces the record.
func (s *ToolStore) Store(ctx context.Context, exec ToolExecution) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.CallID == "" {
		exec.CallID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = s.now()
	}
	if exec.ResultSize == 0 {
		exec.ResultSize = len(exec.Result)
	}
	if exec.Input == "" {
		exec.Input = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tool_executions
		(call_id, session_id, tool_name, input, result, error, success,
		 duration_ms, result_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.CallID, exec.SessionID, exec.ToolName, exec.Input, exec.Result,
		exec.Error, boolToInt(exec.Success), exec.DurationMs, exec.ResultSize,
		exec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		logging.StoreError("Failed to store tool execution %s: %v", exec.CallID, err)
		return "", err
	}

	logging.StoreDebug("Stored tool execution: %s (tool=%s, size=%d bytes)", exec.CallID, exec.ToolName, exec.ResultSize)
	return exec.CallID, nil
}

const selectColumns = `
	SELECT id, call_id, session_id, tool_name, input, result, error,
	       success, duration_ms, result_size, created_at
	FROM tool_executions`

// Get retrieves a tool execution by its call ID.
func (s *ToolStore) Get(ctx context.Context, callID string) (*ToolExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE call_id = ?`, callID)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, callID)
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Recent retrieves the N most recent tool executions, newest first.
func (s *ToolStore) Recent(ctx context.Context, limit int) ([]ToolExecution, error) {
	return s.query(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limitOrAll(limit))
}

// ByTool retrieves the N most recent executions of a specific tool.
func (s *ToolStore) ByTool(ctx context.Context, toolName string, limit int) ([]ToolExecution, error) {
	return s.query(ctx, selectColumns+` WHERE tool_name = ? ORDER BY created_at DESC, id DESC LIMIT ?`, toolName, limitOrAll(limit))
}

// BySession retrieves the N most recent executions recorded under a session.
func (s *ToolStore) BySession(ctx context.Context, sessionID string, limit int) ([]ToolExecution, error) {
	return s.query(ctx, selectColumns+` WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limitOrAll(limit))
}

func (s *ToolStore) query(ctx context.Context, q string, args ...any) ([]ToolExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []ToolExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// Stats returns storage statistics.
func (s *ToolStore) Stats(ctx context.Context) (*ToolStoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ToolStoreStats{
		ToolBreakdown: make(map[string]int),
	}

	var oldest, newest sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(result_size), 0),
		       COALESCE(SUM(duration_ms), 0),
		       MIN(created_at), MAX(created_at)
		FROM tool_executions`)
	if err := row.Scan(&stats.TotalExecutions, &stats.SuccessCount, &stats.FailureCount,
		&stats.TotalSizeBytes, &stats.TotalDurationMs, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = time.UnixMilli(newest.Int64)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, COUNT(*) FROM tool_executions GROUP BY tool_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.ToolBreakdown[name] = count
	}
	return stats, rows.Err()
}

// SchemaVersion reports the applied migration version and dirty flag.
func (s *ToolStore) SchemaVersion() (uint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schemaVersion(s.db)
}

// Close closes the database connection.
func (s *ToolStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	logging.Store("Closing ToolStore at %s", s.dbPath)
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*ToolExecution, error) {
	var exec ToolExecution
	var successInt int
	var createdAt int64

	err := row.Scan(
		&exec.ID, &exec.CallID, &exec.SessionID, &exec.ToolName,
		&exec.Input, &exec.Result, &exec.Error, &successInt,
		&exec.DurationMs, &exec.ResultSize, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Success = successInt == 1
	exec.CreatedAt = time.UnixMilli(createdAt)
	return &exec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
