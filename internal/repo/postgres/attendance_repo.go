package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttendanceRepo reads the events schema on behalf of the certificate
// service. It never writes.
type AttendanceRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAttendanceRepo(pool *pgxpool.Pool, prom *observability.Prom) *AttendanceRepo {
	return &AttendanceRepo{pool: pool, prom: prom}
}

func (r *AttendanceRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *AttendanceRepo) GetAttendance(ctx context.Context, eventID, email string) (certificate.Attendance, error) {
	var a certificate.Attendance

	err := r.observe("attendance.get", func() error {
		return r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.email, r.attended, e.id, e.title, e.start_at
		FROM events_schema.registrations r
		JOIN events_schema.events e ON e.id = r.event_id
		WHERE r.event_id = $1 AND lower(r.email) = lower($2)`,
			eventID, email,
		).Scan(&a.RegistrationID, &a.Name, &a.Email, &a.Attended, &a.EventID, &a.EventTitle, &a.EventStartAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return certificate.Attendance{}, certificate.ErrRegistrationNotFound
		}
		return certificate.Attendance{}, err
	}

	return a, nil
}
