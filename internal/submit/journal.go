package submit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one journal row per submission attempt. Failed submissions have
// no handle; their row keeps the sponsor's rejection text.
type Record struct {
	ID        string `json:"id"`
	Handle    string `json:"operation,omitempty"`
	Kind      string `json:"kind"`
	ChainID   string `json:"chain_id"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Status    string `json:"status"`
	TxHash    string `json:"tx_hash,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Journal is a local sqlite log of submitted operations, shared between
// concurrent CLI invocations through a file lock.
type Journal struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenJournal(path, lockPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			handle TEXT,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			chain_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_operations_handle ON operations(handle);",
		"CREATE INDEX IF NOT EXISTS idx_operations_status_updated ON operations(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Journal{db: db, lock: flock.New(lockPath)}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append inserts a new record, assigning an ID and timestamps when absent.
func (j *Journal) Append(record Record) error {
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if record.CreatedAt == "" {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return j.save(record)
}

// UpdateStatus rewrites the newest record for a handle after a confirmation
// poll resolves.
func (j *Journal) UpdateStatus(handle string, status Status) error {
	record, err := j.GetByHandle(handle)
	if err != nil {
		return err
	}
	record.Status = string(status.State)
	record.TxHash = status.TransactionHash
	if status.State == StateFailed {
		record.Error = status.Reason
	}
	record.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return j.save(record)
}

func (j *Journal) save(record Record) error {
	locked, err := j.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = j.lock.Unlock() }()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(record.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(record.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = j.db.Exec(`
		INSERT INTO operations (id, handle, kind, status, chain_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			handle=excluded.handle,
			kind=excluded.kind,
			status=excluded.status,
			chain_id=excluded.chain_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, record.ID, record.Handle, record.Kind, record.Status, record.ChainID, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save journal record: %w", err)
	}
	return nil
}

func (j *Journal) GetByHandle(handle string) (Record, error) {
	var payload []byte
	err := j.db.QueryRow(
		"SELECT payload FROM operations WHERE handle = ? ORDER BY updated_at DESC LIMIT 1", handle,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("operation not found: %s", handle)
		}
		return Record{}, fmt.Errorf("read journal record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("decode journal record: %w", err)
	}
	return record, nil
}

func (j *Journal) List(status string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = j.db.Query("SELECT payload FROM operations ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = j.db.Query("SELECT payload FROM operations WHERE status = ? ORDER BY updated_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list journal records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode journal row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return records, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
