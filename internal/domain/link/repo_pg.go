package link

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

const requestCols = `request_id, patient_ref, hip_id, state, otp, otp_attempts,
	care_context_ids, expires_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.RequestID, &r.PatientRef, &r.HIPID, &r.State,
		&r.OTP, &r.OTPAttempts, &r.CareContextIDs, &r.ExpiresAt,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownRequest
	}
	return &r, err
}

func (p *repoPG) Create(ctx context.Context, r *Request) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO link_request
			(request_id, patient_ref, hip_id, state, otp, otp_attempts, care_context_ids, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.RequestID, r.PatientRef, r.HIPID, r.State, r.OTP, r.OTPAttempts,
		r.CareContextIDs, r.ExpiresAt)
	return err
}

func (p *repoPG) Get(ctx context.Context, requestID string) (*Request, error) {
	return scanRequest(p.pool.QueryRow(ctx,
		`SELECT `+requestCols+` FROM link_request WHERE request_id = $1`, requestID))
}

func (p *repoPG) Update(ctx context.Context, r *Request) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE link_request
		SET state=$2, otp=$3, otp_attempts=$4, care_context_ids=$5, expires_at=$6, updated_at=NOW()
		WHERE request_id = $1`,
		r.RequestID, r.State, r.OTP, r.OTPAttempts, r.CareContextIDs, r.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownRequest
	}
	return nil
}

func (p *repoPG) ListActive(ctx context.Context) ([]*Request, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+requestCols+` FROM link_request WHERE state IN ($1,$2)`,
		StateInitiated, StateOTPSent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var active []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		active = append(active, r)
	}
	return active, rows.Err()
}

type linkStorePG struct{ pool *pgxpool.Pool }

func NewLinkStorePG(pool *pgxpool.Pool) LinkStore {
	return &linkStorePG{pool: pool}
}

func (p *linkStorePG) Append(ctx context.Context, l *CareContextLink) (*CareContextLink, error) {
	existing, err := p.Get(ctx, l.PatientRef, l.HIPID)
	if errors.Is(err, ErrUnknownRequest) {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO care_context_link (patient_ref, hip_id, care_context_ids)
			VALUES ($1,$2,$3)`,
			l.PatientRef, l.HIPID, l.CareContextIDs)
		if err != nil {
			return nil, err
		}
		return p.Get(ctx, l.PatientRef, l.HIPID)
	}
	if err != nil {
		return nil, err
	}
	merged := mergeContexts(existing.CareContextIDs, l.CareContextIDs)
	_, err = p.pool.Exec(ctx, `
		UPDATE care_context_link SET care_context_ids=$3
		WHERE patient_ref = $1 AND hip_id = $2`,
		l.PatientRef, l.HIPID, merged)
	if err != nil {
		return nil, err
	}
	existing.CareContextIDs = merged
	return existing, nil
}

func (p *linkStorePG) Get(ctx context.Context, patientRef, hipID string) (*CareContextLink, error) {
	var l CareContextLink
	err := p.pool.QueryRow(ctx, `
		SELECT patient_ref, hip_id, care_context_ids, linked_at
		FROM care_context_link WHERE patient_ref = $1 AND hip_id = $2`,
		patientRef, hipID).
		Scan(&l.PatientRef, &l.HIPID, &l.CareContextIDs, &l.LinkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownRequest
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
