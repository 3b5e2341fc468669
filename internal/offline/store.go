package offline

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrActionNotFound  = errors.New("pending action not found")
	ErrActionNotFailed = errors.New("pending action is not failed")
)

// Store keeps pending actions in a local SQLite file. Rows come back in
// insertion order.
type Store struct {
	db *sql.DB
}

// Open creates or opens the queue database at path. ":memory:" works for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect queue: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectColumns = `
	SELECT id, type, payload, description, created_at, status,
	       event_id, registration_id, error_message, idempotency_key
	FROM pending_actions`

func (s *Store) Add(ctx context.Context, a pendingaction.PendingAction) error {
	if !a.Type.IsValid() {
		return fmt.Errorf("%w: %q", pendingaction.ErrInvalidType, a.Type)
	}
	if a.Status == "" {
		a.Status = pendingaction.StatusPending
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: %q", pendingaction.ErrInvalidStatus, a.Status)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	payload, err := a.Payload.JSON()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_actions
			(id, type, payload, description, created_at, status,
			 event_id, registration_id, error_message, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(payload), a.Description,
		a.CreatedAt.UTC().Format(time.RFC3339Nano), string(a.Status),
		a.EventID, a.RegistrationID, a.ErrorMessage, a.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *Store) All(ctx context.Context) ([]pendingaction.PendingAction, error) {
	return s.list(ctx, selectColumns+` ORDER BY seq ASC`)
}

// Pending returns only actions waiting to be synced, oldest first.
func (s *Store) Pending(ctx context.Context) ([]pendingaction.PendingAction, error) {
	return s.list(ctx, selectColumns+` WHERE status = ? ORDER BY seq ASC`, string(pendingaction.StatusPending))
}

func (s *Store) Get(ctx context.Context, id string) (pendingaction.PendingAction, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pendingaction.PendingAction{}, ErrActionNotFound
	}
	return a, err
}

// UpdateStatus moves an action to status. errMsg is stored only for
// failed; any other status clears it.
func (s *Store) UpdateStatus(ctx context.Context, id string, status pendingaction.Status, errMsg string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", pendingaction.ErrInvalidStatus, status)
	}

	var msg *string
	if status == pendingaction.StatusFailed {
		msg = &errMsg
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, error_message = ? WHERE id = ?`,
		string(status), msg, id,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return requireOne(res)
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return requireOne(res)
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions`); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	return nil
}

// ResetFailed puts a failed action back into the pending queue. An action
// left in syncing by an interrupted run counts as failed here.
func (s *Store) ResetFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions SET status = ?, error_message = NULL
		WHERE id = ? AND status IN (?, ?)`,
		string(pendingaction.StatusPending), id,
		string(pendingaction.StatusFailed), string(pendingaction.StatusSyncing),
	)
	if err != nil {
		return fmt.Errorf("reset action: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrActionNotFailed
}

func (s *Store) ResetAllFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions SET status = ?, error_message = NULL
		WHERE status IN (?, ?)`,
		string(pendingaction.StatusPending),
		string(pendingaction.StatusFailed), string(pendingaction.StatusSyncing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset failed actions: %w", err)
	}
	return res.RowsAffected()
}

// RequeueSyncing returns actions stuck in syncing to pending. Only the
// runner holding the sync lock should call it.
func (s *Store) RequeueSyncing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, error_message = NULL WHERE status = ?`,
		string(pendingaction.StatusPending), string(pendingaction.StatusSyncing),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue syncing actions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]pendingaction.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	out := make([]pendingaction.PendingAction, 0)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (pendingaction.PendingAction, error) {
	var (
		a         pendingaction.PendingAction
		typ       string
		status    string
		payload   string
		createdAt string
		eventID   sql.NullString
		regID     sql.NullString
		errMsg    sql.NullString
	)

	if err := row.Scan(&a.ID, &typ, &payload, &a.Description, &createdAt, &status,
		&eventID, &regID, &errMsg, &a.IdempotencyKey); err != nil {
		return pendingaction.PendingAction{}, err
	}

	a.Type = pendingaction.Type(typ)
	a.Status = pendingaction.Status(status)

	if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
		return pendingaction.PendingAction{}, fmt.Errorf("decode payload of %s: %w", a.ID, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return pendingaction.PendingAction{}, fmt.Errorf("parse created_at of %s: %w", a.ID, err)
	}
	a.CreatedAt = ts

	if eventID.Valid {
		a.EventID = &eventID.String
	}
	if regID.Valid {
		a.RegistrationID = &regID.String
	}
	if errMsg.Valid {
		a.ErrorMessage = &errMsg.String
	}
	return a, nil
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActionNotFound
	}
	return nil
}
