package transfer

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

const jobCols = `transfer_id, consent_id, patient_ref, hip_id, hiu_id,
	window_from, window_to, state, failure_reason, payload,
	deadline_at, delivered_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.TransferID, &j.ConsentID, &j.PatientRef, &j.HIPID, &j.HIUID,
		&j.WindowFrom, &j.WindowTo, &j.State, &j.FailureReason, &j.Payload,
		&j.DeadlineAt, &j.DeliveredAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownJob
	}
	return &j, err
}

func (r *repoPG) Create(ctx context.Context, j *Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO data_transfer_job
			(transfer_id, consent_id, patient_ref, hip_id, hiu_id, window_from, window_to, state, deadline_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		j.TransferID, j.ConsentID, j.PatientRef, j.HIPID, j.HIUID,
		j.WindowFrom, j.WindowTo, j.State, j.DeadlineAt)
	return err
}

func (r *repoPG) Get(ctx context.Context, transferID string) (*Job, error) {
	return scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobCols+` FROM data_transfer_job WHERE transfer_id = $1`, transferID))
}

func (r *repoPG) Update(ctx context.Context, j *Job) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE data_transfer_job
		SET state=$2, failure_reason=$3, payload=$4, deadline_at=$5, delivered_at=$6, updated_at=NOW()
		WHERE transfer_id = $1`,
		j.TransferID, j.State, j.FailureReason, j.Payload, j.DeadlineAt, j.DeliveredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownJob
	}
	return nil
}

func (r *repoPG) ListUnresolved(ctx context.Context) ([]*Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobCols+` FROM data_transfer_job WHERE state IN ($1,$2)`,
		StatePending, StateForwarded)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var unresolved []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		unresolved = append(unresolved, j)
	}
	return unresolved, rows.Err()
}
