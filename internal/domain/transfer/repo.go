package transfer

import "context"

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, transferID string) (*Job, error)
	Update(ctx context.Context, j *Job) error
	// ListUnresolved returns PENDING and FORWARDED jobs, for the deadline
	// sweep.
	ListUnresolved(ctx context.Context) ([]*Job, error)
}
