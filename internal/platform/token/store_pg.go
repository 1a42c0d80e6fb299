package token

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGClientStore persists bridge clients in the bridge_client table so issued
// credentials survive restarts.
type PGClientStore struct{ pool *pgxpool.Pool }

func NewPGClientStore(pool *pgxpool.Pool) *PGClientStore {
	return &PGClientStore{pool: pool}
}

func (s *PGClientStore) CreateClient(ctx context.Context, client *Client) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_client (client_id, bridge_id, secret_hash, status)
		VALUES ($1,$2,$3,$4)`,
		client.ClientID, client.BridgeID, client.SecretHash, client.Status)
	return err
}

func (s *PGClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `
		SELECT client_id, bridge_id, secret_hash, status, created_at
		FROM bridge_client WHERE client_id = $1`, clientID).
		Scan(&c.ClientID, &c.BridgeID, &c.SecretHash, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownClient
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
