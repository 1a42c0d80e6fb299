package consent

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const consentCols = `consent_id, patient_id, hiu_id, hip_id, date_from, date_to,
	record_types, status, granted_at, valid_until, created_at, updated_at`

func scanArtefact(row pgx.Row) (*Artefact, error) {
	var a Artefact
	err := row.Scan(&a.ConsentID, &a.PatientID, &a.HIUID, &a.HIPID,
		&a.DateFrom, &a.DateTo, &a.RecordTypes, &a.Status,
		&a.GrantedAt, &a.ValidUntil, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownConsent
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Artefact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consent_artefact
			(consent_id, patient_id, hiu_id, hip_id, date_from, date_to, record_types, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ConsentID, a.PatientID, a.HIUID, a.HIPID,
		a.DateFrom, a.DateTo, a.RecordTypes, a.Status)
	return err
}

func (r *repoPG) Get(ctx context.Context, consentID string) (*Artefact, error) {
	return scanArtefact(r.pool.QueryRow(ctx,
		`SELECT `+consentCols+` FROM consent_artefact WHERE consent_id = $1`, consentID))
}

func (r *repoPG) Update(ctx context.Context, a *Artefact) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consent_artefact
		SET status=$2, granted_at=$3, valid_until=$4, updated_at=NOW()
		WHERE consent_id = $1`,
		a.ConsentID, a.Status, a.GrantedAt, a.ValidUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownConsent
	}
	return nil
}
