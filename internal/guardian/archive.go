package guardian

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db/dialect"
)

// Archive persists violations so the audit trail survives restarts. The
// in-memory list remains the hot-path source of truth; the archive is
// write-through.
type Archive struct {
	pool   *db.Pool
	logger *logger.Logger
}

// NewArchive creates the archive and ensures its schema.
func NewArchive(pool *db.Pool, log *logger.Logger) (*Archive, error) {
	archive := &Archive{
		pool:   pool,
		logger: log.WithFields(zap.String("component", "violation_archive")),
	}
	if err := archive.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize violation archive schema: %w", err)
	}
	return archive, nil
}

func (a *Archive) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS guardian_violations (
			id TEXT PRIMARY KEY,
			violation_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			principle TEXT NOT NULL,
			description TEXT NOT NULL,
			source_component TEXT NOT NULL,
			source_agent TEXT,
			details TEXT NOT NULL DEFAULT '{}',
			remediation TEXT NOT NULL DEFAULT '[]',
			auto_resolved INTEGER NOT NULL DEFAULT 0,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_guardian_violations_created ON guardian_violations(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := a.pool.Writer().Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends one violation to the archive.
func (a *Archive) Insert(ctx context.Context, v *Violation) error {
	detailsJSON := "{}"
	if v.Details != nil {
		encoded, err := json.Marshal(v.Details)
		if err != nil {
			return fmt.Errorf("failed to serialize violation details: %w", err)
		}
		detailsJSON = string(encoded)
	}
	remediationJSON := "[]"
	if v.Remediation != nil {
		encoded, err := json.Marshal(v.Remediation)
		if err != nil {
			return fmt.Errorf("failed to serialize violation remediation: %w", err)
		}
		remediationJSON = string(encoded)
	}

	writer := a.pool.Writer()
	_, err := writer.ExecContext(ctx, writer.Rebind(`
		INSERT INTO guardian_violations
			(id, violation_type, severity, principle, description, source_component, source_agent,
			 details, remediation, auto_resolved, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), v.ID, string(v.Type), string(v.Severity), v.Principle, v.Description,
		v.SourceComponent, v.SourceAgent, detailsJSON, remediationJSON,
		dialect.BoolToInt(v.AutoResolved), dialect.BoolToInt(v.Acknowledged), v.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to archive violation: %w", err)
	}
	return nil
}

// List returns the newest violations, most recent first.
func (a *Archive) List(ctx context.Context, limit int) ([]Violation, error) {
	if limit <= 0 {
		limit = 100
	}

	reader := a.pool.Reader()
	rows, err := reader.QueryContext(ctx, reader.Rebind(`
		SELECT id, violation_type, severity, principle, description, source_component, source_agent,
		       details, remediation, auto_resolved, acknowledged, created_at
		FROM guardian_violations ORDER BY created_at DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var violations []Violation
	for rows.Next() {
		var (
			v               Violation
			vtype           string
			severity        string
			detailsJSON     string
			remediationJSON string
			autoResolved    int
			acknowledged    int
		)
		if err := rows.Scan(&v.ID, &vtype, &severity, &v.Principle, &v.Description,
			&v.SourceComponent, &v.SourceAgent, &detailsJSON, &remediationJSON,
			&autoResolved, &acknowledged, &v.Timestamp); err != nil {
			return nil, err
		}
		v.Type = ViolationType(vtype)
		v.Severity = Severity(severity)
		v.AutoResolved = autoResolved != 0
		v.Acknowledged = acknowledged != 0
		if detailsJSON != "" && detailsJSON != "{}" {
			if err := json.Unmarshal([]byte(detailsJSON), &v.Details); err != nil {
				return nil, fmt.Errorf("failed to deserialize violation details: %w", err)
			}
		}
		if remediationJSON != "" && remediationJSON != "[]" {
			if err := json.Unmarshal([]byte(remediationJSON), &v.Remediation); err != nil {
				return nil, fmt.Errorf("failed to deserialize violation remediation: %w", err)
			}
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// SetAutoResolved flips the advisory auto_resolved flag.
func (a *Archive) SetAutoResolved(ctx context.Context, id string) error {
	return a.setFlag(ctx, "auto_resolved", id)
}

// SetAcknowledged flips the advisory acknowledged flag.
func (a *Archive) SetAcknowledged(ctx context.Context, id string) error {
	return a.setFlag(ctx, "acknowledged", id)
}

func (a *Archive) setFlag(ctx context.Context, column, id string) error {
	writer := a.pool.Writer()
	result, err := writer.ExecContext(ctx, writer.Rebind(
		fmt.Sprintf(`UPDATE guardian_violations SET %s = ? WHERE id = ?`, column)),
		dialect.BoolToInt(true), id)
	if err != nil {
		return fmt.Errorf("failed to update archived violation: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("violation not found: %s", id)
	}
	return nil
}
