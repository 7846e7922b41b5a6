package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oms.heartbeat.dev/db"
	"github.com/google/uuid"
)

// PostgresAuditRepository implements AuditRepository against the oms schema's
// audit_log table using raw pgx, matching the SQL/Warehouse Resolver's
// parameterised-query style rather than GORM.
type PostgresAuditRepository struct {
	db *db.PostgresDB
}

// NewPostgresAuditRepository creates a new PostgreSQL-backed audit repository.
func NewPostgresAuditRepository(pg *db.PostgresDB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: pg}
}

// SaveAuditRecord inserts one audit entry. Failures here are logged by the
// caller and must never mask the original operation outcome (spec §4.H).
func (r *PostgresAuditRepository) SaveAuditRecord(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	requestJSON, err := json.Marshal(rec.RequestPayload)
	if err != nil {
		return fmt.Errorf("marshal request payload: %w", err)
	}
	responseJSON, err := json.Marshal(rec.ResponseSummary)
	if err != nil {
		return fmt.Errorf("marshal response summary: %w", err)
	}

	return r.db.Exec(ctx, `
		INSERT INTO oms.audit_log (
			id, "timestamp", actor_id, actor_role, operation,
			target_type, target_id, success, error_message,
			request_payload, response_summary, execution_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.Timestamp, rec.ActorID, rec.ActorRole, rec.Operation,
		rec.TargetType, rec.TargetID, rec.Success, rec.ErrorMessage,
		requestJSON, responseJSON, rec.ExecutionTimeMs,
	)
}

// QueryAuditRecords filters audit entries conjunctively across whichever
// fields of AuditFilter are non-zero.
func (r *PostgresAuditRepository) QueryAuditRecords(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	query := `
		SELECT id, "timestamp", actor_id, actor_role, operation,
		       target_type, target_id, success, error_message,
		       request_payload, response_summary, execution_time_ms
		FROM oms.audit_log
		WHERE ($1 = '' OR actor_id = $1)
		  AND ($2 = '' OR operation = $2)
		  AND ($3 = '' OR target_type = $3)
		  AND ($4 = '' OR target_id = $4)
		  AND ($5::boolean IS NULL OR success = $5)
		  AND ($6::timestamptz IS NULL OR "timestamp" >= $6)
		ORDER BY "timestamp" DESC
		LIMIT $7
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}

	rows, err := r.db.Query(ctx, query,
		filter.ActorID, filter.Operation, filter.TargetType, filter.TargetID,
		filter.Success, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var requestJSON, responseJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.ActorID, &rec.ActorRole, &rec.Operation,
			&rec.TargetType, &rec.TargetID, &rec.Success, &rec.ErrorMessage,
			&requestJSON, &responseJSON, &rec.ExecutionTimeMs,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(requestJSON, &rec.RequestPayload)
		_ = json.Unmarshal(responseJSON, &rec.ResponseSummary)
		records = append(records, rec)
	}

	return records, rows.Err()
}
