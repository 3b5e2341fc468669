package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/domain/event"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	e := event.NewFromCreateRequest(req)

	err := r.observe("events.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO events_schema.events (id, title, description, city, start_at, capacity, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			e.ID, e.Title, e.Description, e.City, e.StartAt, e.Capacity, e.CreatedAt, e.UpdatedAt)
		return err
	})
	if err != nil {
		return event.Event{}, err
	}

	return e, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var e event.Event
	err := r.observe("events.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, title, description, city, start_at, capacity, created_at, updated_at
			 FROM events_schema.events WHERE id = $1`, id,
		).Scan(&e.ID, &e.Title, &e.Description, &e.City, &e.StartAt, &e.Capacity, &e.CreatedAt, &e.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

// ListCursor pages events by (start_at, id) ascending. A zero afterStartAt
// starts from the first event.
func (r *EventsRepo) ListCursor(
	ctx context.Context,
	filters event.ListEventsFilter,
	afterStartAt time.Time,
	afterID string,
) (items []event.Event, nextCursor *string, hasMore bool, err error) {
	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if filters.City != nil {
		conds = append(conds, fmt.Sprintf("city = $%d", argsPos))
		args = append(args, *filters.City)
		argsPos++
	}

	if filters.From != nil {
		conds = append(conds, fmt.Sprintf("start_at >= $%d", argsPos))
		args = append(args, *filters.From)
		argsPos++
	}

	if filters.To != nil {
		conds = append(conds, fmt.Sprintf("start_at <= $%d", argsPos))
		args = append(args, *filters.To)
		argsPos++
	}

	if !afterStartAt.IsZero() {
		conds = append(conds, fmt.Sprintf("(start_at, id) > ($%d, $%d)", argsPos, argsPos+1))
		args = append(args, afterStartAt, afterID)
		argsPos += 2
	}

	q := `SELECT id, title, description, city, start_at, capacity, created_at, updated_at
		FROM events_schema.events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filters.Limit
	q += fmt.Sprintf(" ORDER BY start_at ASC, id ASC LIMIT $%d", argsPos)
	args = append(args, limit+1)

	var rows pgx.Rows
	err = r.observe("events.list_cursor", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]event.Event, 0, limit)

	for rows.Next() {
		var e event.Event
		if scanErr := rows.Scan(&e.ID, &e.Title, &e.Description, &e.City, &e.StartAt, &e.Capacity, &e.CreatedAt, &e.UpdatedAt); scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]
		cur, encErr := utils.EncodeEventCursor(last.StartAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}
