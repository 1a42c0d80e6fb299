package consent

import "context"

type Repository interface {
	Create(ctx context.Context, a *Artefact) error
	Get(ctx context.Context, consentID string) (*Artefact, error)
	Update(ctx context.Context, a *Artefact) error
}
