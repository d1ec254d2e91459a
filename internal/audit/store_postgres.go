package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/guard/models"
)

// PostgresStore persists audit records to the audit_records table. Audit
// writes deliberately use the plain connection, never the operation's
// transaction: a record's outcome is only written after the transaction is
// already terminal, and must survive independently of it.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, record Record) error {
	var snapshot []byte
	if record.ContextSnapshot != nil {
		b, err := json.Marshal(record.ContextSnapshot)
		if err != nil {
			return fmt.Errorf("marshal context snapshot: %w", err)
		}
		snapshot = b
	}

	query := `
		INSERT INTO audit_records (
			id, operation_id, kind, principal_id, outcome, reason,
			started_at, duration_ms, ip_address, user_agent, request_id, context_snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.OperationID,
		record.Kind,
		nullableString(record.PrincipalID),
		string(record.Outcome),
		nullableString(record.Reason),
		record.StartedAt,
		record.DurationMs,
		record.IPAddress,
		record.UserAgent,
		record.RequestID,
		snapshot,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns the most recent limit records, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, operation_id, kind, principal_id, outcome, reason,
		       started_at, duration_ms, ip_address, user_agent, request_id, context_snapshot
		FROM audit_records
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record      Record
			id, opID    uuid.UUID
			principalID sql.NullString
			reason      sql.NullString
			outcome     string
			snapshot    []byte
		)
		if err := rows.Scan(
			&id, &opID, &record.Kind, &principalID, &outcome, &reason,
			&record.StartedAt, &record.DurationMs,
			&record.IPAddress, &record.UserAgent, &record.RequestID, &snapshot,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.ID = id
		record.OperationID = opID
		record.PrincipalID = principalID.String
		record.Reason = reason.String
		record.Outcome = models.Outcome(outcome)
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &record.ContextSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal context snapshot: %w", err)
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// PurgeOlderThan deletes records whose operation started more than the given
// number of days ago. Returns the number of deleted rows. Run periodically
// to enforce the retention policy.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return res.RowsAffected()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
