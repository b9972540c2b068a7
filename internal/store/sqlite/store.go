package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"joke_contest/internal/domain"

	_ "modernc.org/sqlite"
)

// MemoryPath keeps the journal in the process only.
const MemoryPath = ":memory:"

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	max_rounds INTEGER NOT NULL,
	status TEXT NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bus_messages (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	topic TEXT NOT NULL,
	from_agent TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_bus_messages_run ON bus_messages(run_id, created_at);

CREATE TABLE IF NOT EXISTS records (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	round INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY(run_id, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS decision_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_decision_log_run ON decision_log(run_id, created_at);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	if dbPath == MemoryPath {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	} else {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.RunInfo) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, max_rounds, status, last_error, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		run.ID, run.MaxRounds, string(run.Status), run.LastError, run.CreatedAt.Unix(), run.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status domain.RunStatus, lastError string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.RunInfo, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, max_rounds, status, last_error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunInfo{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return domain.RunInfo{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, max_rounds, status, last_error, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []domain.RunInfo
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func (s *Store) LogMessage(ctx context.Context, msg domain.Message) error {
	payload := string(msg.Payload)
	if payload == "" {
		payload = "{}"
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO bus_messages(id, run_id, topic, from_agent, type, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RunID, msg.Topic, msg.FromAgent, string(msg.Type), payload, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	return nil
}

func (s *Store) ListRunMessages(ctx context.Context, runID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, topic, from_agent, type, payload, created_at
		FROM bus_messages
		WHERE run_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run messages: %w", err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var m domain.Message
		var typ, payload string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.RunID, &m.Topic, &m.FromAgent, &typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run message: %w", err)
		}
		m.Type = domain.MessageType(typ)
		m.Payload = json.RawMessage(payload)
		m.CreatedAt = unixToTime(createdAt)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run messages: %w", err)
	}
	return result, nil
}

func (s *Store) AppendRecord(ctx context.Context, runID string, seq int, rec domain.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO records(run_id, seq, kind, round, text, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, string(rec.Kind), rec.Round, rec.Text(), string(payload), createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// ListRunRecords returns the streamed records of a run in sequence order.
func (s *Store) ListRunRecords(ctx context.Context, runID string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT payload FROM records WHERE run_id = ? ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	var result []domain.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return result, nil
}

func (s *Store) LogDecision(ctx context.Context, entry domain.DecisionLog) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO decision_log(run_id, actor, action, reason, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Actor, entry.Action, entry.Reason, payload, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

func (s *Store) ListRunDecisions(ctx context.Context, runID string, limit int) ([]domain.DecisionLog, error) {
	if limit <= 0 {
		limit = 300
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, actor, action, reason, payload, created_at
		FROM decision_log
		WHERE run_id = ?
		ORDER BY id ASC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run decisions: %w", err)
	}
	defer rows.Close()

	var result []domain.DecisionLog
	for rows.Next() {
		var item domain.DecisionLog
		var payload string
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.RunID, &item.Actor, &item.Action, &item.Reason, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		item.Payload = []byte(payload)
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.RunInfo, error) {
	var run domain.RunInfo
	var status string
	var created, updated int64
	if err := row.Scan(&run.ID, &run.MaxRounds, &status, &run.LastError, &created, &updated); err != nil {
		return domain.RunInfo{}, err
	}
	run.Status = domain.RunStatus(status)
	run.CreatedAt = unixToTime(created)
	run.UpdatedAt = unixToTime(updated)
	return run, nil
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}
