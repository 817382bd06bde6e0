// Package syncer mirrors registered forms from the upstream collection
// platform into local storage and records every run as a SyncLog.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/cleaning"
	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

var (
	ErrFormNotRegistered = errors.New("form not registered")
	ErrSyncInProgress    = errors.New("sync already in progress for form")
)

// Source is the upstream platform.
type Source interface {
	FetchSchema(ctx context.Context, formUID string) (*kobo.Asset, error)
	FetchSubmissions(ctx context.Context, formUID, since string) ([]json.RawMessage, error)
}

// FormStore returns nil, nil from Get when the form is not registered.
type FormStore interface {
	Get(ctx context.Context, uid string) (*models.Form, error)
	List(ctx context.Context) ([]models.Form, error)
	UpdateSchema(ctx context.Context, uid, version string, schema []byte) error
	MarkSynced(ctx context.Context, uid, cursor string, at time.Time) error
}

type SubmissionStore interface {
	Upsert(ctx context.Context, sub *models.Submission) (models.UpsertOutcome, error)
}

type SyncLogStore interface {
	Create(ctx context.Context, l *models.SyncLog) error
	Update(ctx context.Context, l *models.SyncLog) error
}

// Observer is told about every run that stored its batch, once the log is
// final. Observers run in registration order on the syncing goroutine.
type Observer interface {
	SyncFinished(ctx context.Context, l *models.SyncLog)
}

type Orchestrator struct {
	source Source
	forms  FormStore
	subs   SubmissionStore
	logs   SyncLogStore
	cache  *schemaindex.Cache
	log    *zap.Logger
	now    func() time.Time

	// Concurrency bounds RunAll. Zero means 4.
	Concurrency int

	observers []Observer

	mu      sync.Mutex
	running map[string]struct{}
}

func New(source Source, forms FormStore, subs SubmissionStore, logs SyncLogStore, cache *schemaindex.Cache, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if cache == nil {
		cache = schemaindex.NewCache()
	}
	return &Orchestrator{
		source:  source,
		forms:   forms,
		subs:    subs,
		logs:    logs,
		cache:   cache,
		log:     log.Named("sync"),
		now:     func() time.Time { return time.Now().UTC() },
		running: make(map[string]struct{}),
	}
}

// Observe registers observers. It must be called before the first Run.
func (o *Orchestrator) Observe(obs ...Observer) {
	o.observers = append(o.observers, obs...)
}

// IsRunning reports whether a sync for formUID is in flight.
func (o *Orchestrator) IsRunning(formUID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[formUID]
	return ok
}

func (o *Orchestrator) acquire(formUID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[formUID]; ok {
		return false
	}
	o.running[formUID] = struct{}{}
	return true
}

func (o *Orchestrator) release(formUID string) {
	o.mu.Lock()
	delete(o.running, formUID)
	o.mu.Unlock()
}

// Run synchronizes one form and returns its finished SyncLog.
//
// Unregistered forms and concurrent runs for the same form are rejected
// before any log is written. Once a log exists, a batch-level failure
// finishes it as failed and is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, formUID string, kind models.SyncKind) (*models.SyncLog, error) {
	if !o.acquire(formUID) {
		return nil, ErrSyncInProgress
	}
	defer o.release(formUID)

	form, err := o.forms.Get(ctx, formUID)
	if err != nil {
		return nil, fmt.Errorf("load form %s: %w", formUID, err)
	}
	if form == nil {
		return nil, fmt.Errorf("%w: %s", ErrFormNotRegistered, formUID)
	}

	l := &models.SyncLog{
		ID:        uuid.NewString(),
		FormUID:   formUID,
		Kind:      kind,
		Status:    models.SyncPending,
		StartedAt: o.now(),
	}
	if err := o.logs.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}
	if err := o.transition(ctx, l, models.SyncRunning); err != nil {
		return l, err
	}

	log := o.log.With(zap.String("form", formUID), zap.String("kind", string(kind)), zap.String("sync_id", l.ID))
	log.Info("sync started", zap.String("cursor", form.Cursor))

	cursor, err := o.run(ctx, form, kind, l)
	if err != nil {
		l.Error = err.Error()
		if terr := o.transition(ctx, l, models.SyncFailed); terr != nil {
			log.Error("record sync failure", zap.Error(terr))
		}
		log.Error("sync failed", zap.Error(err))
		return l, err
	}

	status := models.SyncSuccess
	if len(l.RecordErrors) > 0 {
		status = models.SyncPartial
		cursor = form.Cursor
	}
	if err := o.forms.MarkSynced(ctx, formUID, cursor, o.now()); err != nil {
		l.Error = err.Error()
		if terr := o.transition(ctx, l, models.SyncFailed); terr != nil {
			log.Error("record sync failure", zap.Error(terr))
		}
		log.Error("sync failed", zap.Error(err))
		return l, fmt.Errorf("update form %s: %w", formUID, err)
	}
	if err := o.transition(ctx, l, status); err != nil {
		return l, err
	}
	log.Info("sync finished",
		zap.String("status", string(l.Status)),
		zap.Int("processed", l.RecordsProcessed),
		zap.Int("added", l.RecordsAdded),
		zap.Int("updated", l.RecordsUpdated),
		zap.Int("record_errors", len(l.RecordErrors)))
	for _, obs := range o.observers {
		obs.SyncFinished(context.WithoutCancel(ctx), l)
	}
	return l, nil
}

// run does the work of one sync and returns the cursor to store on success.
func (o *Orchestrator) run(ctx context.Context, form *models.Form, kind models.SyncKind, l *models.SyncLog) (string, error) {
	asset, err := o.source.FetchSchema(ctx, form.UID)
	if err != nil {
		return "", err
	}
	if kind == models.SyncFull || !form.HasSchema() || asset.VersionID != form.SchemaVersion {
		idx, err := schemaindex.Build(form.UID, asset.Raw)
		if err != nil {
			return "", err
		}
		idx.Version = asset.VersionID
		if err := o.forms.UpdateSchema(ctx, form.UID, asset.VersionID, asset.Raw); err != nil {
			return "", fmt.Errorf("store schema: %w", err)
		}
		o.cache.Swap(idx)
		for _, w := range idx.Warnings {
			o.log.Warn("schema warning", zap.String("form", form.UID), zap.String("warning", w))
		}
	}

	since := form.Cursor
	if kind == models.SyncFull {
		since = ""
	}
	records, err := o.source.FetchSubmissions(ctx, form.UID, since)
	if err != nil {
		return "", err
	}

	cursor := form.Cursor
	var latest time.Time
	if t := cleaning.SubmittedAt(map[string]any{"_submission_time": cursor}); t != nil {
		latest = *t
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var raw map[string]any
		if err := json.Unmarshal(rec, &raw); err != nil || raw == nil {
			l.RecordsProcessed++
			l.RecordErrors = append(l.RecordErrors, models.RecordError{
				Message: fmt.Sprintf("record %d of batch is not a JSON object", i),
			})
			continue
		}
		outcome, err := o.store(ctx, form.UID, raw, l)
		if err != nil {
			return "", err
		}
		l.RecordsProcessed++
		switch outcome {
		case models.Inserted:
			l.RecordsAdded++
		case models.Updated:
			l.RecordsUpdated++
		}
		if ts, ok := raw["_submission_time"].(string); ok {
			if t := cleaning.SubmittedAt(raw); t != nil && t.After(latest) {
				latest, cursor = *t, ts
			}
		}
	}
	return cursor, nil
}

// store upserts one record. Problems with the record itself are appended to
// l.RecordErrors; only storage failures are returned.
func (o *Orchestrator) store(ctx context.Context, formUID string, raw map[string]any, l *models.SyncLog) (models.UpsertOutcome, error) {
	id := cleaning.RecordID(raw)
	if id == "" {
		l.RecordErrors = append(l.RecordErrors, models.RecordError{Message: "record has no id"})
		return models.Unchanged, nil
	}
	hash, err := cleaning.ContentHash(raw)
	if err != nil {
		l.RecordErrors = append(l.RecordErrors, models.RecordError{RecordID: id, Message: err.Error()})
		return models.Unchanged, nil
	}
	cleaned, err := cleaning.Clean(raw)
	if err != nil {
		l.RecordErrors = append(l.RecordErrors, models.RecordError{RecordID: id, Message: err.Error()})
		cleaned = nil
	}
	lat, lng := cleaning.ExtractLocation(raw)
	sub := &models.Submission{
		FormUID:     formUID,
		KoboID:      id,
		Raw:         raw,
		Cleaned:     cleaned,
		ContentHash: hash,
		SubmittedAt: cleaning.SubmittedAt(raw),
		Latitude:    lat,
		Longitude:   lng,
	}
	outcome, err := o.subs.Upsert(ctx, sub)
	if err != nil {
		return models.Unchanged, fmt.Errorf("store record %s: %w", id, err)
	}
	return outcome, nil
}

// transition persists a status change. The write is detached from ctx so a
// cancelled sync still records its outcome.
func (o *Orchestrator) transition(ctx context.Context, l *models.SyncLog, to models.SyncStatus) error {
	if err := l.Transition(to, o.now()); err != nil {
		return err
	}
	if err := o.logs.Update(context.WithoutCancel(ctx), l); err != nil {
		return fmt.Errorf("update sync log: %w", err)
	}
	return nil
}
