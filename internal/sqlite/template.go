package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/repository"
)

// TemplateRepository implements template.Repository for SQLite
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create stores a template and its items in one transaction
func (r *TemplateRepository) Create(ctx context.Context, tpl *template.Template) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (id, name, created_at) VALUES (?, ?, ?)`,
		tpl.ID, tpl.Name, tpl.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create template: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO template_items (
			template_id, item_id, position, category, section, title, input_type,
			options, required, conditional_item_id, conditional_operator, conditional_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range tpl.Items {
		options, err := json.Marshal(item.Options)
		if err != nil {
			return fmt.Errorf("failed to encode options for %s: %w", item.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			tpl.ID,
			item.ID,
			item.Position,
			item.Category,
			item.Section,
			item.Title,
			item.InputType,
			string(options),
			item.Required,
			item.ConditionalItemID,
			item.ConditionalOperator,
			item.ConditionalValue,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrConflict
			}
			return fmt.Errorf("failed to create template item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}
	return nil
}

// Get retrieves a template with its items in position order
func (r *TemplateRepository) Get(ctx context.Context, id string) (*template.Template, error) {
	var tpl template.Template
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM templates WHERE id = ?`, id,
	).Scan(&tpl.ID, &tpl.Name, &tpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			item_id, position, category, section, title, input_type, options,
			required, conditional_item_id, conditional_operator, conditional_value
		FROM template_items
		WHERE template_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item template.ChecklistItem
		var options string
		if err := rows.Scan(
			&item.ID,
			&item.Position,
			&item.Category,
			&item.Section,
			&item.Title,
			&item.InputType,
			&options,
			&item.Required,
			&item.ConditionalItemID,
			&item.ConditionalOperator,
			&item.ConditionalValue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template item: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &item.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options for %s: %w", item.ID, err)
		}
		tpl.Items = append(tpl.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template items: %w", err)
	}

	return &tpl, nil
}

// List returns all templates with summary information
func (r *TemplateRepository) List(ctx context.Context) ([]template.TemplateSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at, ti.category
		FROM templates t
		LEFT JOIN template_items ti ON ti.template_id = t.id
		ORDER BY t.created_at DESC, t.id, ti.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var summaries []template.TemplateSummary
	seen := make(map[string]bool)
	for rows.Next() {
		var summary template.TemplateSummary
		var category sql.NullString
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.CreatedAt, &category); err != nil {
			return nil, fmt.Errorf("failed to scan template summary: %w", err)
		}

		n := len(summaries)
		if n == 0 || summaries[n-1].ID != summary.ID {
			summary.Categories = []string{}
			summaries = append(summaries, summary)
			n++
			seen = make(map[string]bool)
		}
		if !category.Valid {
			continue
		}
		current := &summaries[n-1]
		current.ItemCount++
		if !seen[category.String] {
			seen[category.String] = true
			current.Categories = append(current.Categories, category.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template rows: %w", err)
	}

	return summaries, nil
}
