package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LogsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewLogsRepo(pool *pgxpool.Pool, prom *observability.Prom) *LogsRepo {
	return &LogsRepo{pool: pool, prom: prom}
}

func (r *LogsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *LogsRepo) Create(ctx context.Context, req logentry.CreateRequest) (logentry.Entry, error) {
	e := logentry.NewFromCreateRequest(req)

	err := r.observe("logs.create", func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO logs_schema.logs (id, service, level, action, message, request_id, user_id, metadata, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.Service, e.Level, e.Action, e.Message, e.RequestID, e.UserID, e.Metadata, e.Timestamp)
		return err
	})
	if err != nil {
		return logentry.Entry{}, err
	}

	return e, nil
}

// ListCursor pages newest first. A zero afterTS starts from the top.
func (r *LogsRepo) ListCursor(
	ctx context.Context,
	filters logentry.ListFilter,
	afterTS time.Time,
	afterID string,
) (items []logentry.Entry, nextCursor *string, hasMore bool, err error) {
	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if filters.Service != nil {
		conds = append(conds, fmt.Sprintf("service = $%d", argsPos))
		args = append(args, *filters.Service)
		argsPos++
	}

	if filters.Level != nil {
		conds = append(conds, fmt.Sprintf("level = $%d", argsPos))
		args = append(args, *filters.Level)
		argsPos++
	}

	if !afterTS.IsZero() {
		conds = append(conds, fmt.Sprintf("(timestamp, id) < ($%d, $%d)", argsPos, argsPos+1))
		args = append(args, afterTS, afterID)
		argsPos += 2
	}

	q := `SELECT id, service, level, action, message, request_id, user_id, metadata, timestamp FROM logs_schema.logs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filters.Limit
	q += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limit+1)

	var rows pgx.Rows
	err = r.observe("logs.list_cursor", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]logentry.Entry, 0, limit)
	for rows.Next() {
		var e logentry.Entry
		if scanErr := rows.Scan(&e.ID, &e.Service, &e.Level, &e.Action, &e.Message, &e.RequestID, &e.UserID, &e.Metadata, &e.Timestamp); scanErr != nil {
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
		cur, encErr := utils.EncodeLogCursor(last.Timestamp, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}
