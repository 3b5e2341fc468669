package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const certificateColumns = `id, code, user_email, user_name, event_id, event_title, event_date, issued_at, is_active`

type CertificatesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCertificatesRepo(pool *pgxpool.Pool, prom *observability.Prom) *CertificatesRepo {
	return &CertificatesRepo{pool: pool, prom: prom}
}

func (r *CertificatesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanCertificate(row pgx.Row, c *certificate.Certificate) error {
	return row.Scan(&c.ID, &c.Code, &c.UserEmail, &c.UserName, &c.EventID, &c.EventTitle, &c.EventDate, &c.IssuedAt, &c.IsActive)
}

func (r *CertificatesRepo) getOne(ctx context.Context, op, where string, args ...any) (certificate.Certificate, error) {
	var c certificate.Certificate

	err := r.observe(op, func() error {
		return scanCertificate(r.pool.QueryRow(ctx,
			`SELECT `+certificateColumns+` FROM certificates_schema.certificates WHERE `+where, args...), &c)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return certificate.Certificate{}, certificate.ErrNotFound
		}
		return certificate.Certificate{}, err
	}
	return c, nil
}

// FindByUserAndEvent returns any certificate, active or revoked, held by
// email for the event.
func (r *CertificatesRepo) FindByUserAndEvent(ctx context.Context, email, eventID string) (certificate.Certificate, error) {
	return r.getOne(ctx, "certificates.find_by_user_event",
		`lower(user_email) = lower($1) AND event_id = $2`, email, eventID)
}

func (r *CertificatesRepo) GetByCode(ctx context.Context, code string) (certificate.Certificate, error) {
	return r.getOne(ctx, "certificates.get_by_code", `code = $1`, code)
}

// Insert persists c. Losing the race on (user, event) maps to
// certificate.ErrAlreadyIssued.
func (r *CertificatesRepo) Insert(ctx context.Context, c certificate.Certificate) error {
	err := r.observe("certificates.insert", func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO certificates_schema.certificates (`+certificateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			c.ID, c.Code, c.UserEmail, c.UserName, c.EventID, c.EventTitle, c.EventDate, c.IssuedAt, c.IsActive)
		return err
	})

	if err != nil && isUniqueViolationOn(err, "certificates_user_event_uniq") {
		return certificate.ErrAlreadyIssued
	}
	return err
}

func (r *CertificatesRepo) ListByUser(ctx context.Context, email string) ([]certificate.Certificate, error) {
	var rows pgx.Rows

	err := r.observe("certificates.list_by_user", func() error {
		var err error
		rows, err = r.pool.Query(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates_schema.certificates
		WHERE lower(user_email) = lower($1)
		ORDER BY issued_at DESC, id DESC`, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]certificate.Certificate, 0)
	for rows.Next() {
		var c certificate.Certificate
		if err := scanCertificate(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// Deactivate revokes an active certificate. Revoking twice reports
// certificate.ErrNotFound.
func (r *CertificatesRepo) Deactivate(ctx context.Context, code string) error {
	var tag pgconn.CommandTag

	err := r.observe("certificates.deactivate", func() error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE certificates_schema.certificates SET is_active = FALSE WHERE code = $1 AND is_active`, code)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return certificate.ErrNotFound
	}
	return nil
}
