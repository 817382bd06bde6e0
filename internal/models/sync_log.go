package models

import (
	"fmt"
	"time"
)

type SyncKind string

const (
	SyncFull        SyncKind = "full"
	SyncIncremental SyncKind = "incremental"
)

// ParseSyncKind accepts "full" and "incremental"; empty means incremental.
func ParseSyncKind(s string) (SyncKind, error) {
	switch SyncKind(s) {
	case "", SyncIncremental:
		return SyncIncremental, nil
	case SyncFull:
		return SyncFull, nil
	}
	return "", fmt.Errorf("unknown sync kind %q", s)
}

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncPartial || s == SyncFailed
}

// RecordError is a per-record failure absorbed during a sync batch.
type RecordError struct {
	RecordID string `json:"recordId"`
	Message  string `json:"message"`
}

// SyncLog records one sync invocation for a form.
type SyncLog struct {
	ID               string        `json:"id"`
	FormUID          string        `json:"formUid"`
	Kind             SyncKind      `json:"kind"`
	Status           SyncStatus    `json:"status"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       *time.Time    `json:"finishedAt,omitempty"`
	RecordsProcessed int           `json:"recordsProcessed"`
	RecordsAdded     int           `json:"recordsAdded"`
	RecordsUpdated   int           `json:"recordsUpdated"`
	Error            string        `json:"error,omitempty"`
	RecordErrors     []RecordError `json:"recordErrors,omitempty"`
}

// Transition moves the log to status. Terminal logs are immutable, and a log
// only moves forward: pending -> running -> terminal.
func (l *SyncLog) Transition(to SyncStatus, at time.Time) error {
	if l.Status.Terminal() {
		return fmt.Errorf("sync log %s is %s and cannot move to %s", l.ID, l.Status, to)
	}
	switch {
	case l.Status == SyncPending && to == SyncRunning:
	case l.Status == SyncRunning && to.Terminal():
		l.FinishedAt = &at
	default:
		return fmt.Errorf("sync log %s: invalid transition %s -> %s", l.ID, l.Status, to)
	}
	l.Status = to
	return nil
}
