package bridge

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const bridgeCols = `bridge_id, role, callback_url, services, status, created_at, updated_at`

func scanBridge(row pgx.Row) (*Bridge, error) {
	var b Bridge
	err := row.Scan(&b.BridgeID, &b.Role, &b.CallbackURL, &b.Services,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownBridge
	}
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Bridge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bridge (bridge_id, role, callback_url, services, status)
		VALUES ($1,$2,$3,$4,$5)`,
		b.BridgeID, b.Role, b.CallbackURL, b.Services, b.Status)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateBridge
	}
	return err
}

func (r *repoPG) Get(ctx context.Context, bridgeID string) (*Bridge, error) {
	return scanBridge(r.pool.QueryRow(ctx,
		`SELECT `+bridgeCols+` FROM bridge WHERE bridge_id = $1`, bridgeID))
}

func (r *repoPG) Update(ctx context.Context, b *Bridge) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bridge SET callback_url=$2, services=$3, status=$4, updated_at=NOW()
		WHERE bridge_id = $1`,
		b.BridgeID, b.CallbackURL, b.Services, b.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownBridge
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Bridge, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bridge`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+bridgeCols+` FROM bridge ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bridge
	for rows.Next() {
		b, err := scanBridge(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}
