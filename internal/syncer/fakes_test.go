package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/models"
)

type fakeSource struct {
	mu        sync.Mutex
	asset     *kobo.Asset
	records   []map[string]any
	malformed []json.RawMessage
	schemaErr error
	dataErr   error
	since     []string
	started   chan struct{}
	block     chan struct{}
}

func (s *fakeSource) FetchSchema(ctx context.Context, uid string) (*kobo.Asset, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaErr != nil {
		return nil, s.schemaErr
	}
	a := *s.asset
	a.UID = uid
	return &a, nil
}

func (s *fakeSource) FetchSubmissions(ctx context.Context, uid, since string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = append(s.since, since)
	if s.dataErr != nil {
		return nil, s.dataErr
	}
	out := make([]json.RawMessage, 0, len(s.records)+len(s.malformed))
	for _, rec := range s.records {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return append(out, s.malformed...), nil
}

type memForms struct {
	mu      sync.Mutex
	forms   map[string]*models.Form
	order   []string
	markErr error
}

func newMemForms(uids ...string) *memForms {
	m := &memForms{forms: make(map[string]*models.Form)}
	for _, uid := range uids {
		m.forms[uid] = &models.Form{UID: uid, Title: uid}
		m.order = append(m.order, uid)
	}
	return m
}

func (m *memForms) Get(_ context.Context, uid string) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[uid]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (m *memForms) List(_ context.Context) ([]models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Form, 0, len(m.order))
	for _, uid := range m.order {
		out = append(out, *m.forms[uid])
	}
	return out, nil
}

func (m *memForms) UpdateSchema(_ context.Context, uid, version string, schema []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[uid].SchemaVersion = version
	m.forms[uid].Schema = schema
	return nil
}

func (m *memForms) MarkSynced(_ context.Context, uid, cursor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.forms[uid].Cursor = cursor
	m.forms[uid].LastSyncedAt = &at
	return nil
}

type memSubs struct {
	mu   sync.Mutex
	rows map[string]*models.Submission
}

func newMemSubs() *memSubs { return &memSubs{rows: make(map[string]*models.Submission)} }

func (m *memSubs) Upsert(_ context.Context, sub *models.Submission) (models.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sub.FormUID + "/" + sub.KoboID
	cur, ok := m.rows[key]
	switch {
	case !ok:
		m.rows[key] = sub
		return models.Inserted, nil
	case cur.ContentHash == sub.ContentHash:
		return models.Unchanged, nil
	}
	m.rows[key] = sub
	return models.Updated, nil
}

func (m *memSubs) get(formUID, id string) *models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[formUID+"/"+id]
}

func (m *memSubs) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memLogs struct {
	mu      sync.Mutex
	logs    map[string]models.SyncLog
	history map[string][]models.SyncStatus

	// failOn makes Update reject writes carrying this status.
	failOn models.SyncStatus
}

func newMemLogs() *memLogs {
	return &memLogs{logs: make(map[string]models.SyncLog), history: make(map[string][]models.SyncStatus)}
}

func (m *memLogs) Create(_ context.Context, l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[l.ID] = *l
	m.history[l.ID] = append(m.history[l.ID], l.Status)
	return nil
}

func (m *memLogs) Update(_ context.Context, l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && l.Status == m.failOn {
		return errors.New("sync log store unavailable")
	}
	m.logs[l.ID] = *l
	m.history[l.ID] = append(m.history[l.ID], l.Status)
	return nil
}

func (m *memLogs) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []models.SyncLog
}

func (r *recordingObserver) SyncFinished(_ context.Context, l *models.SyncLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, *l)
}

func (r *recordingObserver) statuses() []models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SyncStatus, len(r.seen))
	for i, l := range r.seen {
		out[i] = l.Status
	}
	return out
}
