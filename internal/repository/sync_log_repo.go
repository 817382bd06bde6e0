package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parisxmas/kobodash/internal/db"
	"github.com/parisxmas/kobodash/internal/models"
)

const syncLogColumns = `id, form_uid, kind, status, started_at, finished_at, records_processed, records_added, records_updated, error, record_errors`

type SyncLogRepo struct {
	db *sql.DB
}

func NewSyncLogRepo(d *db.DB) *SyncLogRepo {
	return &SyncLogRepo{db: d.SQL()}
}

func (r *SyncLogRepo) Create(ctx context.Context, l *models.SyncLog) error {
	recErrs, err := encodeRecordErrors(l.RecordErrors)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO sync_logs (`+syncLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.FormUID, string(l.Kind), string(l.Status), formatTime(l.StartedAt), formatTimePtr(l.FinishedAt),
		l.RecordsProcessed, l.RecordsAdded, l.RecordsUpdated, l.Error, recErrs)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

func (r *SyncLogRepo) Update(ctx context.Context, l *models.SyncLog) error {
	recErrs, err := encodeRecordErrors(l.RecordErrors)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE sync_logs SET status = ?, finished_at = ?, records_processed = ?,
		records_added = ?, records_updated = ?, error = ?, record_errors = ? WHERE id = ?`,
		string(l.Status), formatTimePtr(l.FinishedAt), l.RecordsProcessed, l.RecordsAdded, l.RecordsUpdated,
		l.Error, recErrs, l.ID)
	if err != nil {
		return fmt.Errorf("update sync log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update sync log %s: %w", l.ID, sql.ErrNoRows)
	}
	return nil
}

// List returns the most recent logs, optionally for a single form.
func (r *SyncLogRepo) List(ctx context.Context, formUID string, limit int) ([]models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs`
	var args []any
	if formUID != "" {
		query += ` WHERE form_uid = ?`
		args = append(args, formUID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()
	logs := make([]models.SyncLog, 0)
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// Latest returns nil, nil when the form has never been synced.
func (r *SyncLogRepo) Latest(ctx context.Context, formUID string) (*models.SyncLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+syncLogColumns+` FROM sync_logs WHERE form_uid = ?
		ORDER BY started_at DESC LIMIT 1`, formUID)
	l, err := scanSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func encodeRecordErrors(errs []models.RecordError) (sql.NullString, error) {
	if len(errs) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode record errors: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanSyncLog(s scanner) (*models.SyncLog, error) {
	var (
		l                   models.SyncLog
		kind, status        string
		startedAt           string
		finishedAt, recErrs sql.NullString
	)
	if err := s.Scan(&l.ID, &l.FormUID, &kind, &status, &startedAt, &finishedAt,
		&l.RecordsProcessed, &l.RecordsAdded, &l.RecordsUpdated, &l.Error, &recErrs); err != nil {
		return nil, err
	}
	l.Kind, l.Status = models.SyncKind(kind), models.SyncStatus(status)
	var err error
	if l.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if l.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, err
	}
	if recErrs.Valid {
		if err := json.Unmarshal([]byte(recErrs.String), &l.RecordErrors); err != nil {
			return nil, fmt.Errorf("decode record errors: %w", err)
		}
	}
	return &l, nil
}
