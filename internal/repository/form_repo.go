package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parisxmas/kobodash/internal/db"
	"github.com/parisxmas/kobodash/internal/models"
)

// ErrDuplicate is returned when a form with the same uid or slug exists.
var ErrDuplicate = errors.New("form already registered")

const formColumns = `uid, title, slug, description, schema_version, schema, cursor, last_synced_at, created_at, updated_at`

type FormRepo struct {
	db *sql.DB
}

func NewFormRepo(d *db.DB) *FormRepo {
	return &FormRepo{db: d.SQL()}
}

func (r *FormRepo) Create(ctx context.Context, f *models.Form) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO forms (`+formColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UID, f.Title, f.Slug, f.Description, f.SchemaVersion, []byte(f.Schema), f.Cursor,
		formatTimePtr(f.LastSyncedAt), formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicate, f.UID)
		}
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

// Get returns nil, nil when uid is not registered.
func (r *FormRepo) Get(ctx context.Context, uid string) (*models.Form, error) {
	return r.findOne(ctx, "uid = ?", uid)
}

func (r *FormRepo) FindBySlug(ctx context.Context, slug string) (*models.Form, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *FormRepo) findOne(ctx context.Context, where string, arg any) (*models.Form, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+formColumns+` FROM forms WHERE `+where, arg)
	f, err := scanForm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// List returns registered forms, newest first.
func (r *FormRepo) List(ctx context.Context) ([]models.Form, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+formColumns+` FROM forms ORDER BY created_at DESC, uid`)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	forms := make([]models.Form, 0)
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *f)
	}
	return forms, rows.Err()
}

func (r *FormRepo) UpdateSchema(ctx context.Context, uid, version string, schema []byte) error {
	return r.exec(ctx, `UPDATE forms SET schema_version = ?, schema = ?, updated_at = ? WHERE uid = ?`,
		version, schema, formatTime(time.Now()), uid)
}

func (r *FormRepo) MarkSynced(ctx context.Context, uid, cursor string, at time.Time) error {
	return r.exec(ctx, `UPDATE forms SET cursor = ?, last_synced_at = ?, updated_at = ? WHERE uid = ?`,
		cursor, formatTime(at), formatTime(at), uid)
}

// ResetCursor forgets sync progress so the next incremental sync refetches
// everything.
func (r *FormRepo) ResetCursor(ctx context.Context, uid string) error {
	return r.exec(ctx, `UPDATE forms SET cursor = '', updated_at = ? WHERE uid = ?`, formatTime(time.Now()), uid)
}

func (r *FormRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update form: %w", sql.ErrNoRows)
	}
	return nil
}

func scanForm(s scanner) (*models.Form, error) {
	var (
		f                    models.Form
		schema               []byte
		lastSynced           sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&f.UID, &f.Title, &f.Slug, &f.Description, &f.SchemaVersion, &schema, &f.Cursor,
		&lastSynced, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if len(schema) > 0 {
		f.Schema = schema
	}
	var err error
	if f.LastSyncedAt, err = parseTimePtr(lastSynced); err != nil {
		return nil, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
