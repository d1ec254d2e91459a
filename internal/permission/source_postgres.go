package permission

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSource reads permission grants from the principal_permissions table.
//
// Schema:
//
//	CREATE TABLE principal_permissions (
//	    principal_id TEXT NOT NULL,
//	    permission   TEXT NOT NULL,
//	    PRIMARY KEY (principal_id, permission)
//	);
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// GetPermissions returns every permission granted to the principal.
func (s *PostgresSource) GetPermissions(ctx context.Context, principalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission FROM principal_permissions WHERE principal_id = $1`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query principal permissions: %w", err)
	}
	defer rows.Close()

	var held []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		held = append(held, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}
	return held, nil
}
