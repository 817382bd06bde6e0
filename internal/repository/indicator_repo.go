package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/parisxmas/kobodash/internal/db"
	"github.com/parisxmas/kobodash/internal/models"
)

const indicatorColumns = `id, form_uid, name, type, field, answer, value, computed_at`

type IndicatorRepo struct {
	db *sql.DB
}

func NewIndicatorRepo(d *db.DB) *IndicatorRepo {
	return &IndicatorRepo{db: d.SQL()}
}

// Replace makes inds the complete indicator set of a form. Indicators keep
// their id across recomputations; names no longer produced are removed.
func (r *IndicatorRepo) Replace(ctx context.Context, formUID string, inds []models.Indicator) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	names := make([]any, 0, len(inds)+1)
	names = append(names, formUID)
	for _, ind := range inds {
		_, err := tx.ExecContext(ctx, `INSERT INTO indicators (form_uid, name, type, field, answer, value, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (form_uid, name) DO UPDATE SET type = excluded.type, field = excluded.field,
				answer = excluded.answer, value = excluded.value, computed_at = excluded.computed_at`,
			formUID, ind.Name, string(ind.Type), ind.Field, ind.Answer, ind.Value, formatTime(ind.ComputedAt))
		if err != nil {
			return fmt.Errorf("store indicator %q: %w", ind.Name, err)
		}
		names = append(names, ind.Name)
	}

	stale := `DELETE FROM indicators WHERE form_uid = ?`
	if len(inds) > 0 {
		stale += ` AND name NOT IN (?` + strings.Repeat(", ?", len(inds)-1) + `)`
	}
	if _, err := tx.ExecContext(ctx, stale, names...); err != nil {
		return fmt.Errorf("remove stale indicators: %w", err)
	}
	return tx.Commit()
}

// List returns indicators in computation order, optionally for a single form.
func (r *IndicatorRepo) List(ctx context.Context, formUID string) ([]models.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators`
	var args []any
	if formUID != "" {
		query += ` WHERE form_uid = ?`
		args = append(args, formUID)
	}
	query += ` ORDER BY form_uid, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	defer rows.Close()
	out := make([]models.Indicator, 0)
	for rows.Next() {
		var (
			ind        models.Indicator
			kind       string
			computedAt string
		)
		if err := rows.Scan(&ind.ID, &ind.FormUID, &ind.Name, &kind, &ind.Field, &ind.Answer, &ind.Value, &computedAt); err != nil {
			return nil, err
		}
		ind.Type = models.IndicatorType(kind)
		if ind.ComputedAt, err = parseTime(computedAt); err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (r *IndicatorRepo) DeleteByForm(ctx context.Context, formUID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM indicators WHERE form_uid = ?`, formUID)
	if err != nil {
		return 0, fmt.Errorf("delete indicators: %w", err)
	}
	return res.RowsAffected()
}
