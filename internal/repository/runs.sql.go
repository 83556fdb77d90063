package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditLog = `
INSERT INTO audit_log (entity_type, entity_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertAuditLog, arg.EntityType, arg.EntityID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listAuditLogByEntity = `
SELECT id, entity_type, entity_id, action, prev_state, next_state, metadata, created_at
FROM audit_log
WHERE entity_type = $1 AND entity_id = $2
ORDER BY id
`

type ListAuditLogByEntityParams struct {
	EntityType string
	EntityID   pgtype.UUID
}

func (q *Queries) ListAuditLogByEntity(ctx context.Context, arg ListAuditLogByEntityParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogByEntity, arg.EntityType, arg.EntityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		var i AuditLog
		if err := rows.Scan(&i.ID, &i.EntityType, &i.EntityID, &i.Action, &i.PrevState, &i.NextState, &i.Metadata, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const runColumns = `id, job, reference_date, status, started_at, finished_at, summary`

func scanRun(row interface{ Scan(...any) error }, i *SettlementRun) error {
	return row.Scan(&i.ID, &i.Job, &i.ReferenceDate, &i.Status, &i.StartedAt, &i.FinishedAt, &i.Summary)
}

const createSettlementRun = `
INSERT INTO settlement_runs (id, job, reference_date, status)
VALUES ($1, $2, $3, 'RUNNING')
RETURNING ` + runColumns

type CreateSettlementRunParams struct {
	ID            pgtype.UUID
	Job           string
	ReferenceDate pgtype.Date
}

func (q *Queries) CreateSettlementRun(ctx context.Context, arg CreateSettlementRunParams) (SettlementRun, error) {
	row := q.db.QueryRow(ctx, createSettlementRun, arg.ID, arg.Job, arg.ReferenceDate)
	var i SettlementRun
	err := scanRun(row, &i)
	return i, err
}

const finishSettlementRun = `
UPDATE settlement_runs
SET status = $2, summary = $3, finished_at = NOW()
WHERE id = $1 AND status = 'RUNNING'
`

type FinishSettlementRunParams struct {
	ID      pgtype.UUID
	Status  string
	Summary []byte
}

func (q *Queries) FinishSettlementRun(ctx context.Context, arg FinishSettlementRunParams) (int64, error) {
	result, err := q.db.Exec(ctx, finishSettlementRun, arg.ID, arg.Status, arg.Summary)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listSettlementRuns = `
SELECT ` + runColumns + `
FROM settlement_runs
WHERE ($1::text IS NULL OR job = $1)
ORDER BY started_at DESC, id
LIMIT $2
`

type ListSettlementRunsParams struct {
	Job   *string
	Limit int32
}

func (q *Queries) ListSettlementRuns(ctx context.Context, arg ListSettlementRunsParams) ([]SettlementRun, error) {
	rows, err := q.db.Query(ctx, listSettlementRuns, arg.Job, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SettlementRun
	for rows.Next() {
		var i SettlementRun
		if err := scanRun(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
