package bridge

import "context"

type Repository interface {
	Create(ctx context.Context, b *Bridge) error
	Get(ctx context.Context, bridgeID string) (*Bridge, error)
	Update(ctx context.Context, b *Bridge) error
	List(ctx context.Context, limit, offset int) ([]*Bridge, int, error)
}
