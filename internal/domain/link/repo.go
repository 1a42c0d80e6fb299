package link

import "context"

type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, requestID string) (*Request, error)
	Update(ctx context.Context, r *Request) error
	// ListActive returns requests in a non-terminal state, for the sweep.
	ListActive(ctx context.Context) ([]*Request, error)
}

type LinkStore interface {
	// Append merges careContextIDs into the link for (patientRef, hipID),
	// creating it on first confirmation.
	Append(ctx context.Context, l *CareContextLink) (*CareContextLink, error)
	Get(ctx context.Context, patientRef, hipID string) (*CareContextLink, error)
}
