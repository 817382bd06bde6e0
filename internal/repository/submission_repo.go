package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parisxmas/kobodash/internal/db"
	"github.com/parisxmas/kobodash/internal/models"
)

const submissionColumns = `id, form_uid, kobo_id, raw, cleaned, content_hash, submitted_at, latitude, longitude, created_at, updated_at`

type SubmissionRepo struct {
	db *sql.DB
}

func NewSubmissionRepo(d *db.DB) *SubmissionRepo {
	return &SubmissionRepo{db: d.SQL()}
}

// Upsert stores sub keyed by (form, upstream id). A record whose content
// hash is unchanged is left untouched; otherwise raw and cleaned payloads
// are replaced together.
func (r *SubmissionRepo) Upsert(ctx context.Context, sub *models.Submission) (models.UpsertOutcome, error) {
	raw, err := encodeJSON(sub.Raw)
	if err != nil {
		return models.Unchanged, fmt.Errorf("encode raw payload: %w", err)
	}
	cleaned, err := encodeJSON(sub.Cleaned)
	if err != nil {
		return models.Unchanged, fmt.Errorf("encode cleaned payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Unchanged, err
	}
	defer tx.Rollback()

	var (
		id   int64
		hash string
	)
	now := formatTime(time.Now())
	err = tx.QueryRowContext(ctx, `SELECT id, content_hash FROM submissions WHERE form_uid = ? AND kobo_id = ?`,
		sub.FormUID, sub.KoboID).Scan(&id, &hash)
	outcome := models.Updated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `INSERT INTO submissions (form_uid, kobo_id, raw, cleaned, content_hash, submitted_at, latitude, longitude, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.FormUID, sub.KoboID, raw, cleaned, sub.ContentHash, formatTimePtr(sub.SubmittedAt),
			nullFloat(sub.Latitude), nullFloat(sub.Longitude), now, now)
		if err != nil {
			return models.Unchanged, fmt.Errorf("insert submission: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return models.Unchanged, err
		}
		outcome = models.Inserted
	case err != nil:
		return models.Unchanged, fmt.Errorf("lookup submission: %w", err)
	case hash == sub.ContentHash:
		sub.ID = id
		return models.Unchanged, nil
	default:
		_, err := tx.ExecContext(ctx, `UPDATE submissions SET raw = ?, cleaned = ?, content_hash = ?, submitted_at = ?,
			latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
			raw, cleaned, sub.ContentHash, formatTimePtr(sub.SubmittedAt),
			nullFloat(sub.Latitude), nullFloat(sub.Longitude), now, id)
		if err != nil {
			return models.Unchanged, fmt.Errorf("update submission: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Unchanged, err
	}
	sub.ID = id
	return outcome, nil
}

// ListByForm pages through a form's submissions, newest first, and returns
// the total count.
func (r *SubmissionRepo) ListByForm(ctx context.Context, formUID string, skip, limit int) ([]*models.Submission, int, error) {
	total, err := r.CountByForm(ctx, formUID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE form_uid = ?
		ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`, formUID, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	subs, err := scanSubmissions(rows)
	return subs, total, err
}

// AllByForm returns every submission of a form in submission order, the
// order aggregations report categories in.
func (r *SubmissionRepo) AllByForm(ctx context.Context, formUID string) ([]*models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE form_uid = ?
		ORDER BY submitted_at, id`, formUID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// FindByID returns nil, nil when the submission does not belong to the form.
func (r *SubmissionRepo) FindByID(ctx context.Context, formUID string, id int64) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE form_uid = ? AND id = ?`, formUID, id)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SubmissionRepo) CountByForm(ctx context.Context, formUID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM submissions WHERE form_uid = ?`, formUID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// CountsByForm returns submission counts keyed by form uid.
func (r *SubmissionRepo) CountsByForm(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT form_uid, count(*) FROM submissions GROUP BY form_uid`)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			uid string
			n   int
		)
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, err
		}
		out[uid] = n
	}
	return out, rows.Err()
}

func (r *SubmissionRepo) DeleteByForm(ctx context.Context, formUID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE form_uid = ?`, formUID)
	if err != nil {
		return 0, fmt.Errorf("delete submissions: %w", err)
	}
	return res.RowsAffected()
}

func scanSubmissions(rows *sql.Rows) ([]*models.Submission, error) {
	defer rows.Close()
	subs := make([]*models.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanSubmission(sc scanner) (*models.Submission, error) {
	var (
		s                    models.Submission
		raw, cleaned         sql.NullString
		submittedAt          sql.NullString
		lat, lng             sql.NullFloat64
		createdAt, updatedAt string
	)
	if err := sc.Scan(&s.ID, &s.FormUID, &s.KoboID, &raw, &cleaned, &s.ContentHash, &submittedAt,
		&lat, &lng, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.Raw, err = decodeMap(raw); err != nil {
		return nil, fmt.Errorf("decode raw payload of submission %d: %w", s.ID, err)
	}
	if s.Cleaned, err = decodeMap(cleaned); err != nil {
		return nil, fmt.Errorf("decode cleaned payload of submission %d: %w", s.ID, err)
	}
	if s.SubmittedAt, err = parseTimePtr(submittedAt); err != nil {
		return nil, err
	}
	s.Latitude, s.Longitude = floatPtr(lat), floatPtr(lng)
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
