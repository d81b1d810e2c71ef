package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CreateOrderLogParams struct {
	OrderID  int64
	Action   string
	OldValue []byte
	NewValue []byte
	ServerID pgtype.UUID
}

// Insert-only. There is deliberately no UPDATE or DELETE statement for
// order_logs anywhere in this package.
const createOrderLog = `INSERT INTO order_logs (order_id, action, old_value, new_value, server_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, action, old_value, new_value, server_id, created_at`

func (q *Queries) CreateOrderLog(ctx context.Context, arg CreateOrderLogParams) (OrderLog, error) {
	var l OrderLog
	err := q.db.QueryRow(ctx, createOrderLog,
		arg.OrderID, arg.Action, arg.OldValue, arg.NewValue, arg.ServerID,
	).Scan(&l.ID, &l.OrderID, &l.Action, &l.OldValue, &l.NewValue, &l.ServerID, &l.CreatedAt)
	return l, err
}

type ListOrderLogsParams struct {
	OrderID int64
	Limit   int32
	Offset  int32
}

const listOrderLogs = `SELECT id, order_id, action, old_value, new_value, server_id, created_at
FROM order_logs
WHERE order_id = $1
ORDER BY id
LIMIT $2 OFFSET $3`

func (q *Queries) ListOrderLogs(ctx context.Context, arg ListOrderLogsParams) ([]OrderLog, error) {
	rows, err := q.db.Query(ctx, listOrderLogs, arg.OrderID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []OrderLog
	for rows.Next() {
		var l OrderLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Action, &l.OldValue, &l.NewValue, &l.ServerID, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
