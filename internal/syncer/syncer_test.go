package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const assetJSON = `{"uid":"f1","version_id":"v1","content":{"survey":[
	{"type":"select_one provinces","name":"province"},
	{"type":"integer","name":"hh_size"}],
	"choices":[{"list_name":"provinces","name":"p1","label":["Kabul"]}]}}`

type harness struct {
	src   *fakeSource
	forms *memForms
	subs  *memSubs
	logs  *memLogs
	cache *schemaindex.Cache
	o     *Orchestrator
}

func newHarness(uids ...string) *harness {
	if len(uids) == 0 {
		uids = []string{"f1"}
	}
	h := &harness{
		src: &fakeSource{
			asset: &kobo.Asset{VersionID: "v1", Raw: []byte(assetJSON)},
			records: []map[string]any{
				{"_id": float64(1), "province": "p1", "hh_size": "4", "_submission_time": "2024-03-01T10:00:00"},
				{"_id": float64(2), "province": "p1", "hh_size": "6", "_submission_time": "2024-03-02T10:00:00"},
			},
		},
		forms: newMemForms(uids...),
		subs:  newMemSubs(),
		logs:  newMemLogs(),
		cache: schemaindex.NewCache(),
	}
	h.o = New(h.src, h.forms, h.subs, h.logs, h.cache, nil)
	return h
}

func (h *harness) index() *schemaindex.Index {
	x, _ := h.cache.Get("f1")
	return x
}

func TestRun_FullSync(t *testing.T) {
	h := newHarness()

	l, err := h.o.Run(context.Background(), "f1", models.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, l.Status)
	assert.Equal(t, 2, l.RecordsProcessed)
	assert.Equal(t, 2, l.RecordsAdded)
	assert.NotNil(t, l.FinishedAt)
	assert.Equal(t, []models.SyncStatus{models.SyncPending, models.SyncRunning, models.SyncSuccess}, h.logs.history[l.ID])

	f, _ := h.forms.Get(context.Background(), "f1")
	assert.Equal(t, "2024-03-02T10:00:00", f.Cursor)
	assert.Equal(t, "v1", f.SchemaVersion)
	assert.NotNil(t, f.LastSyncedAt)

	idx := h.index()
	require.NotNil(t, idx)
	assert.Equal(t, "Kabul", idx.ResolveLabel("province", "p1"))

	sub := h.subs.get("f1", "1")
	require.NotNil(t, sub)
	assert.Equal(t, "4", sub.Cleaned["hh_size"])
	assert.NotEmpty(t, sub.ContentHash)
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)
	l, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, models.SyncSuccess, l.Status)
	assert.Equal(t, 2, l.RecordsProcessed)
	assert.Zero(t, l.RecordsAdded)
	assert.Zero(t, l.RecordsUpdated)
	assert.Equal(t, 2, h.subs.len())
}

func TestRun_IncrementalTwiceLeavesRowsUntouched(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	assert.Equal(t, 2, first.RecordsAdded)
	before := h.subs.get("f1", "2")

	// The upstream resends records at the cursor boundary.
	second, err := h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, second.Status)
	assert.Zero(t, second.RecordsAdded)
	assert.Zero(t, second.RecordsUpdated)
	assert.Same(t, before, h.subs.get("f1", "2"))
}

func TestRun_MalformedRecordIsPartial(t *testing.T) {
	h := newHarness()
	h.src.malformed = []json.RawMessage{json.RawMessage(`"not an object"`), json.RawMessage(`null`)}

	l, err := h.o.Run(context.Background(), "f1", models.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPartial, l.Status)
	assert.Equal(t, 4, l.RecordsProcessed)
	assert.Equal(t, 2, l.RecordsAdded)
	require.Len(t, l.RecordErrors, 2)
	assert.Contains(t, l.RecordErrors[0].Message, "not a JSON object")
	assert.Equal(t, 2, h.subs.len())
}

func TestRun_MarkSyncedFailureIsLogged(t *testing.T) {
	h := newHarness()
	core, entries := observer.New(zap.ErrorLevel)
	h.o = New(h.src, h.forms, h.subs, h.logs, h.cache, zap.New(core))
	h.forms.markErr = errors.New("disk full")
	h.logs.failOn = models.SyncFailed

	l, err := h.o.Run(context.Background(), "f1", models.SyncFull)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, "disk full", l.Error)

	recorded := entries.FilterMessage("record sync failure").All()
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].ContextMap()["error"], "sync log store unavailable")
	assert.Equal(t, 1, entries.FilterMessage("sync failed").Len())
}

func TestRun_ObserversSeeStoredRuns(t *testing.T) {
	h := newHarness()
	first, second := &recordingObserver{}, &recordingObserver{}
	h.o.Observe(first, second)
	ctx := context.Background()

	_, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	h.src.malformed = []json.RawMessage{json.RawMessage(`"x"`)}
	_, err = h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	h.src.dataErr = errors.New("boom")
	_, err = h.o.Run(ctx, "f1", models.SyncFull)
	require.Error(t, err)

	want := []models.SyncStatus{models.SyncSuccess, models.SyncPartial}
	assert.Equal(t, want, first.statuses())
	assert.Equal(t, want, second.statuses())
	assert.NotNil(t, first.seen[0].FinishedAt)
}

func TestRun_ChangedRecordReplaced(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	h.src.records[1] = map[string]any{"_id": float64(2), "province": "p1", "hh_size": "7", "_submission_time": "2024-03-02T10:00:00"}
	l, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, 1, l.RecordsUpdated)
	assert.Equal(t, "7", h.subs.get("f1", "2").Cleaned["hh_size"])
	assert.Equal(t, "4", h.subs.get("f1", "1").Cleaned["hh_size"])
}

func TestRun_IncrementalUsesCursor(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	_, err = h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	_, err = h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "2024-03-02T10:00:00", ""}, h.src.since)
}

func TestRun_SchemaRebuiltOnlyWhenVersionChanges(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	first := h.index()

	_, err = h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	assert.Same(t, first, h.index())

	h.src.asset = &kobo.Asset{VersionID: "v2", Raw: []byte(assetJSON)}
	_, err = h.o.Run(ctx, "f1", models.SyncIncremental)
	require.NoError(t, err)
	assert.NotSame(t, first, h.index())
	assert.Equal(t, "v2", h.index().Version)
}

func TestRun_UnregisteredFormCreatesNoLog(t *testing.T) {
	h := newHarness()

	l, err := h.o.Run(context.Background(), "nope", models.SyncFull)
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrFormNotRegistered)
	assert.Zero(t, h.logs.len())
}

func TestRun_RecordErrorsArePartial(t *testing.T) {
	h := newHarness()
	h.src.records = append(h.src.records,
		map[string]any{"province": "p1", "_submission_time": "2024-03-05T10:00:00"},
		map[string]any{"_id": float64(3), "a": map[string]any{"b": "x"}, "a/b": "y", "_submission_time": "2024-03-06T10:00:00"},
	)

	l, err := h.o.Run(context.Background(), "f1", models.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPartial, l.Status)
	require.Len(t, l.RecordErrors, 2)
	assert.Equal(t, "3", l.RecordErrors[1].RecordID)
	assert.Equal(t, 3, l.RecordsAdded)

	stored := h.subs.get("f1", "3")
	require.NotNil(t, stored)
	assert.Nil(t, stored.Cleaned)
	assert.NotNil(t, stored.Raw)

	f, _ := h.forms.Get(context.Background(), "f1")
	assert.Empty(t, f.Cursor)
}

func TestRun_FetchFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)

	h.src.dataErr = &kobo.TransientError{Err: errors.New("connection reset")}
	l, err := h.o.Run(ctx, "f1", models.SyncIncremental)
	require.Error(t, err)
	assert.True(t, kobo.IsTransient(err))
	require.NotNil(t, l)
	assert.Equal(t, models.SyncFailed, l.Status)
	assert.Contains(t, l.Error, "connection reset")

	f, _ := h.forms.Get(ctx, "f1")
	assert.Equal(t, "2024-03-02T10:00:00", f.Cursor)
}

func TestRun_SchemaParseErrorKeepsPreviousSchema(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.o.Run(ctx, "f1", models.SyncFull)
	require.NoError(t, err)
	prev := h.index()

	h.src.asset = &kobo.Asset{VersionID: "v2", Raw: []byte(`{"content":{}}`)}
	l, err := h.o.Run(ctx, "f1", models.SyncIncremental)

	var pe *schemaindex.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.SyncFailed, l.Status)
	assert.Same(t, prev, h.index())

	f, _ := h.forms.Get(ctx, "f1")
	assert.Equal(t, "v1", f.SchemaVersion)
	assert.JSONEq(t, assetJSON, string(f.Schema))
}

func TestRun_AtMostOnePerForm(t *testing.T) {
	h := newHarness()
	h.src.started = make(chan struct{}, 1)
	h.src.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.o.Run(context.Background(), "f1", models.SyncFull)
		done <- err
	}()
	<-h.src.started

	assert.True(t, h.o.IsRunning("f1"))
	l, err := h.o.Run(context.Background(), "f1", models.SyncFull)
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(h.src.block)
	require.NoError(t, <-done)
	assert.False(t, h.o.IsRunning("f1"))
	assert.Equal(t, 1, h.logs.len())
}

func TestRun_CancelledStillRecordsFailure(t *testing.T) {
	h := newHarness()
	h.src.block = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	l, err := h.o.Run(ctx, "f1", models.SyncFull)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, l)
	assert.Equal(t, models.SyncFailed, h.logs.logs[l.ID].Status)
}

func TestRunAll(t *testing.T) {
	h := newHarness("f1", "f2", "f3")
	h.o.Concurrency = 2

	logs, err := h.o.RunAll(context.Background(), models.SyncFull)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	assert.Equal(t, 6, h.subs.len())
	for _, l := range logs {
		assert.Equal(t, models.SyncSuccess, l.Status)
	}
}

func TestRunAll_JoinsErrors(t *testing.T) {
	h := newHarness("f1", "f2")
	h.src.dataErr = errors.New("boom")

	logs, err := h.o.RunAll(context.Background(), models.SyncFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "f1")
	assert.Contains(t, err.Error(), "f2")
	assert.Len(t, logs, 2)
}
