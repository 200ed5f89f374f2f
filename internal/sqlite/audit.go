package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/repository"
)

// AuditRepository implements audit.Repository for SQLite
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `
	id, idempotency_token, template_id, location_id, schedule_id, status,
	latitude, longitude, location_verified, created_at, updated_at, completed_at
`

// Create inserts a new audit. A reused idempotency token yields
// repository.ErrConflict.
func (r *AuditRepository) Create(ctx context.Context, a *audit.Audit) error {
	query := `INSERT INTO audits (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		nullString(a.IdempotencyToken),
		a.TemplateID,
		a.LocationID,
		a.ScheduleID,
		a.Status,
		nullFloat(a.Latitude),
		nullFloat(a.Longitude),
		a.LocationVerified,
		a.CreatedAt,
		a.UpdatedAt,
		a.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create audit: %w", err)
	}
	return nil
}

// Get retrieves an audit by ID
func (r *AuditRepository) Get(ctx context.Context, id string) (*audit.Audit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = ?`, id)
	return scanAudit(row)
}

// GetByToken retrieves an audit by its idempotency token
func (r *AuditRepository) GetByToken(ctx context.Context, token string) (*audit.Audit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE idempotency_token = ?`, token)
	return scanAudit(row)
}

func scanAudit(row *sql.Row) (*audit.Audit, error) {
	var a audit.Audit
	var token sql.NullString
	var lat, lon sql.NullFloat64
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&token,
		&a.TemplateID,
		&a.LocationID,
		&a.ScheduleID,
		&a.Status,
		&lat,
		&lon,
		&a.LocationVerified,
		&a.CreatedAt,
		&a.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit: %w", err)
	}

	a.IdempotencyToken = token.String
	a.Latitude = floatPtr(lat)
	a.Longitude = floatPtr(lon)
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

// Update writes the mutable audit fields
func (r *AuditRepository) Update(ctx context.Context, a *audit.Audit) error {
	query := `
		UPDATE audits
		SET status = ?, latitude = ?, longitude = ?, location_verified = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		a.Status,
		nullFloat(a.Latitude),
		nullFloat(a.Longitude),
		a.LocationVerified,
		a.UpdatedAt,
		a.CompletedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update audit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertItems writes item states in one transaction. A repeated item
// overwrites the earlier state, so replays never duplicate rows.
func (r *AuditRepository) UpsertItems(ctx context.Context, auditID string, items []audit.ItemState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_items (
			audit_id, item_id, status, selected_option_id, text, photo_ref, mark, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (audit_id, item_id) DO UPDATE SET
			status = excluded.status,
			selected_option_id = excluded.selected_option_id,
			text = excluded.text,
			photo_ref = excluded.photo_ref,
			mark = excluded.mark,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		updatedAt := item.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			auditID,
			item.ItemID,
			item.Status,
			item.SelectedOptionID,
			item.Text,
			item.PhotoRef,
			nullFloat(item.Mark),
			updatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return repository.ErrForeignKeyViolation
			}
			return fmt.Errorf("failed to save item %s: %w", item.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}

// ListItems returns the recorded item states in template order
func (r *AuditRepository) ListItems(ctx context.Context, auditID string) ([]audit.ItemState, error) {
	query := `
		SELECT
			ai.item_id, ai.status, ai.selected_option_id, ai.text, ai.photo_ref,
			ai.mark, ai.updated_at
		FROM audit_items ai
		JOIN audits a ON a.id = ai.audit_id
		LEFT JOIN template_items ti ON ti.template_id = a.template_id AND ti.item_id = ai.item_id
		WHERE ai.audit_id = ?
		ORDER BY ti.position ASC, ai.item_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit items: %w", err)
	}
	defer rows.Close()

	items := []audit.ItemState{}
	for rows.Next() {
		var item audit.ItemState
		var mark sql.NullFloat64
		if err := rows.Scan(
			&item.ItemID,
			&item.Status,
			&item.SelectedOptionID,
			&item.Text,
			&item.PhotoRef,
			&mark,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit item: %w", err)
		}
		item.Mark = floatPtr(mark)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit items: %w", err)
	}

	return items, nil
}
