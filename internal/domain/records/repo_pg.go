package records

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, rec *HealthRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO health_record
			(record_id, patient_ref, record_type, record_date, source_hospital, data, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.RecordID, rec.PatientRef, rec.RecordType, rec.RecordDate,
		rec.SourceHospital, rec.Data, rec.ReceivedAt)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientRef string, f Filter) ([]*HealthRecord, error) {
	query := `SELECT record_id, patient_ref, record_type, record_date, source_hospital, data, received_at
		FROM health_record WHERE patient_ref = $1`
	args := []any{patientRef}
	if f.RecordType != "" {
		args = append(args, f.RecordType)
		query += ` AND record_type = $2`
	}
	if f.SourceHospital != "" {
		args = append(args, f.SourceHospital)
		if len(args) == 2 {
			query += ` AND source_hospital = $2`
		} else {
			query += ` AND source_hospital = $3`
		}
	}
	query += ` ORDER BY received_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*HealthRecord{}
	for rows.Next() {
		var rec HealthRecord
		if err := rows.Scan(&rec.RecordID, &rec.PatientRef, &rec.RecordType,
			&rec.RecordDate, &rec.SourceHospital, &rec.Data, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
