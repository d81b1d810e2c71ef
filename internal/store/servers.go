package store

import "context"

const getServerByName = `SELECT id, name, pin_hash, role, created_at
FROM servers
WHERE name = $1`

func (q *Queries) GetServerByName(ctx context.Context, name string) (Server, error) {
	var s Server
	err := q.db.QueryRow(ctx, getServerByName, name).
		Scan(&s.ID, &s.Name, &s.PinHash, &s.Role, &s.CreatedAt)
	return s, err
}
