package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/certhub/internal/domain/event"
	"github.com/geocoder89/certhub/internal/domain/registration"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `id, event_id, user_id, name, email, attended, attended_at, created_at, updated_at`

type RegistrationRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationRepo {
	return &RegistrationRepo{
		pool: pool,
		prom: prom,
	}
}

func (repo *RegistrationRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanRegistration(row pgx.Row, r *registration.Registration) error {
	return row.Scan(&r.ID, &r.EventID, &r.UserID, &r.Name, &r.Email, &r.Attended, &r.AttendedAt, &r.CreatedAt, &r.UpdatedAt)
}

func (repo *RegistrationRepo) CreateTx(ctx context.Context, tx pgx.Tx, req registration.CreateRegistrationRequest) (reg registration.Registration, err error) {
	var exists bool

	err = repo.observe("registrations.create_tx.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM events_schema.registrations
			WHERE event_id = $1 AND lower(email) = lower($2)
		)`, req.EventID, req.Email).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = registration.ErrAlreadyRegistered
		return
	}

	// lock the event row so concurrent registrations serialize on capacity
	var capacity int
	var current int
	err = repo.observe("registrations.create_tx.capacity_lock", func() error {
		return tx.QueryRow(ctx, `
		SELECT e.capacity,
			(SELECT COUNT(*) FROM events_schema.registrations r WHERE r.event_id = e.id) AS current
		FROM events_schema.events e
		WHERE e.id = $1
		FOR UPDATE
	`, req.EventID).Scan(&capacity, &current)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}

		return
	}

	if current >= capacity {
		err = registration.ErrEventFull
		return
	}

	reg = registration.NewFromCreateRequest(req)

	err = repo.observe("registrations.create_tx.insert", func() error {
		_, e := tx.Exec(ctx, `
		INSERT INTO events_schema.registrations (id, event_id, user_id, name, email, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, reg.ID, reg.EventID, reg.UserID, reg.Name, reg.Email, reg.CreatedAt, reg.UpdatedAt)
		return e
	})

	if err != nil && isUniqueViolationOn(err, "registrations_event_email_uniq") {
		err = registration.ErrAlreadyRegistered
	}

	return
}

// Create enforces capacity and uniqueness in a single transaction.
func (repo *RegistrationRepo) Create(ctx context.Context, req registration.CreateRegistrationRequest) (reg registration.Registration, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	reg, err = repo.CreateTx(ctx, tx, req)
	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	return
}

func (repo *RegistrationRepo) ListByEvent(ctx context.Context, eventID string) (regs []registration.Registration, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.list_by_event", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx,
			`SELECT `+registrationColumns+`
			 FROM events_schema.registrations
			 WHERE event_id = $1
			 ORDER BY created_at ASC, id ASC`,
			eventID,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	regs = make([]registration.Registration, 0)

	for rows.Next() {
		var r registration.Registration
		if e := scanRegistration(rows, &r); e != nil {
			err = e
			return
		}
		regs = append(regs, r)
	}

	if e := rows.Err(); e != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues("registrations.list_by_event", "rows_err").Inc()
		}
		err = e
		return
	}

	// an empty list for a missing event is a 404, not an empty page
	if len(regs) == 0 {
		var dummy string

		err = repo.observe("registrations.list_by_event.check_event_exists", func() error {
			return repo.pool.QueryRow(ctx, `SELECT id FROM events_schema.events WHERE id = $1`, eventID).Scan(&dummy)
		})

		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
			return
		}
	}

	return
}

func (repo *RegistrationRepo) GetByID(ctx context.Context, eventID, registrationID string) (registration.Registration, error) {
	var r registration.Registration
	err := repo.observe("registrations.get_by_id", func() error {
		return scanRegistration(repo.pool.QueryRow(ctx,
			`SELECT `+registrationColumns+`
			 FROM events_schema.registrations
			 WHERE id = $1 AND event_id = $2`,
			registrationID, eventID,
		), &r)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.Registration{}, registration.ErrNotFound
		}
		return registration.Registration{}, err
	}

	return r, nil
}

func (repo *RegistrationRepo) Delete(ctx context.Context, eventID, registrationID string) error {
	var tag pgconn.CommandTag
	err := repo.observe("registrations.delete", func() error {
		var err error
		tag, err = repo.pool.Exec(ctx,
			`DELETE FROM events_schema.registrations WHERE id = $1 AND event_id = $2`,
			registrationID, eventID)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}

	return nil
}

// SetAttendance flips the attended flag. attended_at keeps the first
// confirmation time and is cleared when attendance is withdrawn.
func (repo *RegistrationRepo) SetAttendance(ctx context.Context, eventID, registrationID string, attended bool) (registration.Registration, error) {
	var r registration.Registration
	now := time.Now().UTC()

	err := repo.observe("registrations.set_attendance", func() error {
		return scanRegistration(repo.pool.QueryRow(ctx, `
		UPDATE events_schema.registrations
		SET attended = $3,
		    attended_at = CASE WHEN $3 THEN COALESCE(attended_at, $4) ELSE NULL END,
		    updated_at = $4
		WHERE id = $1 AND event_id = $2
		RETURNING `+registrationColumns,
			registrationID, eventID, attended, now,
		), &r)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.Registration{}, registration.ErrNotFound
		}
		return registration.Registration{}, err
	}

	return r, nil
}
