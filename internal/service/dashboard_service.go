package service

import (
	"context"
	"time"

	"github.com/parisxmas/kobodash/internal/repository"
)

type FormOverview struct {
	UID          string     `json:"uid"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Submissions  int        `json:"submissions"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	LastStatus   string     `json:"lastStatus,omitempty"`
}

type Overview struct {
	Forms            []FormOverview `json:"forms"`
	TotalForms       int            `json:"totalForms"`
	TotalSubmissions int            `json:"totalSubmissions"`
}

type DashboardService struct {
	forms *repository.FormRepo
	subs  *repository.SubmissionRepo
	logs  *repository.SyncLogRepo
}

func NewDashboardService(forms *repository.FormRepo, subs *repository.SubmissionRepo, logs *repository.SyncLogRepo) *DashboardService {
	return &DashboardService{forms: forms, subs: subs, logs: logs}
}

func (s *DashboardService) Overview(ctx context.Context) (*Overview, error) {
	forms, err := s.forms.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.subs.CountsByForm(ctx)
	if err != nil {
		return nil, err
	}
	out := &Overview{Forms: make([]FormOverview, 0, len(forms)), TotalForms: len(forms)}
	for _, f := range forms {
		fo := FormOverview{UID: f.UID, Title: f.Title, Slug: f.Slug, Submissions: counts[f.UID], LastSyncedAt: f.LastSyncedAt}
		latest, err := s.logs.Latest(ctx, f.UID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			fo.LastStatus = string(latest.Status)
		}
		out.Forms = append(out.Forms, fo)
		out.TotalSubmissions += fo.Submissions
	}
	return out, nil
}
