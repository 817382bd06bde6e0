package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/schemaindex"
	"github.com/parisxmas/kobodash/internal/syncer"
)

// AssetSource looks up form definitions upstream.
type AssetSource interface {
	FetchSchema(ctx context.Context, uid string) (*kobo.Asset, error)
}

type FormService struct {
	forms      *repository.FormRepo
	subs       *repository.SubmissionRepo
	indicators *repository.IndicatorRepo
	source     AssetSource
	cache      *schemaindex.Cache
	log        *zap.Logger
}

func NewFormService(forms *repository.FormRepo, subs *repository.SubmissionRepo, indicators *repository.IndicatorRepo, source AssetSource, cache *schemaindex.Cache, log *zap.Logger) *FormService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FormService{forms: forms, subs: subs, indicators: indicators, source: source, cache: cache, log: log}
}

// Register adds an upstream form to the set of synced forms. The schema is
// fetched and indexed up front so a broken form is rejected immediately.
func (s *FormService) Register(ctx context.Context, uid string) (*models.Form, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, invalid("form uid is required")
	}
	asset, err := s.source.FetchSchema(ctx, uid)
	if err != nil {
		return nil, err
	}
	idx, err := schemaindex.Build(uid, asset.Raw)
	if err != nil {
		return nil, err
	}
	idx.Version = asset.VersionID

	title := asset.Name
	if title == "" {
		title = uid
	}
	formSlug := slug.Make(title)
	if formSlug == "" {
		formSlug = strings.ToLower(uid)
	}
	if existing, _ := s.forms.FindBySlug(ctx, formSlug); existing != nil {
		formSlug = formSlug + "-" + strings.ToLower(uid)
	}

	now := time.Now().UTC()
	form := &models.Form{
		UID:           uid,
		Title:         title,
		Slug:          formSlug,
		SchemaVersion: asset.VersionID,
		Schema:        asset.Raw,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, err
	}
	s.cache.Swap(idx)
	s.log.Info("form registered", zap.String("form", uid), zap.String("slug", formSlug), zap.Int("fields", len(idx.Fields())))
	return form, nil
}

func (s *FormService) List(ctx context.Context) ([]models.Form, error) {
	return s.forms.List(ctx)
}

// Get finds a form by uid or slug.
func (s *FormService) Get(ctx context.Context, ref string) (*models.Form, error) {
	form, err := s.forms.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if form == nil {
		if form, err = s.forms.FindBySlug(ctx, ref); err != nil {
			return nil, err
		}
	}
	if form == nil {
		return nil, fmt.Errorf("%w: %s", syncer.ErrFormNotRegistered, ref)
	}
	return form, nil
}

// Index returns the schema index for form, building it from the stored
// schema on first use. Forms that have not been synced yet have no schema
// and get a nil index, which the resolver treats as "schema unknown".
func (s *FormService) Index(ctx context.Context, form *models.Form) (*schemaindex.Index, error) {
	if !form.HasSchema() {
		return nil, nil
	}
	return s.cache.Load(ctx, form.UID, form.SchemaVersion, func(context.Context) (*schemaindex.Index, error) {
		idx, err := schemaindex.Build(form.UID, form.Schema)
		if err != nil {
			return nil, err
		}
		idx.Version = form.SchemaVersion
		return idx, nil
	})
}

type FieldInfo struct {
	Name     string                   `json:"name"`
	Path     string                   `json:"path"`
	Type     schemaindex.DeclaredType `json:"type"`
	Label    string                   `json:"label,omitempty"`
	Options  []schemaindex.Option     `json:"options,omitempty"`
	Declared bool                     `json:"declared"`
}

// Fields lists the schema fields of a form followed by keys seen in stored
// submissions that the schema does not declare.
func (s *FormService) Fields(ctx context.Context, ref string) ([]FieldInfo, error) {
	form, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	idx, err := s.Index(ctx, form)
	if err != nil {
		return nil, err
	}

	out := make([]FieldInfo, 0)
	seen := make(map[string]bool)
	for _, f := range idx.Fields() {
		info := FieldInfo{Name: f.Name, Path: f.FullPath(), Type: f.Type, Label: f.Label, Declared: true}
		if l, ok := idx.OptionList(f.ListName); ok {
			info.Options = l.Options
		}
		out = append(out, info)
		seen[f.FullPath()] = true
	}

	recent, _, err := s.subs.ListByForm(ctx, form.UID, 0, 1)
	if err != nil {
		return nil, err
	}
	for _, sub := range recent {
		for _, k := range fields.Keys(sub) {
			if seen[k] || strings.HasPrefix(k, "_") {
				continue
			}
			seen[k] = true
			out = append(out, FieldInfo{Name: lastSegment(k), Path: k, Type: schemaindex.TypeUnknown})
		}
	}
	return out, nil
}

// ClearData removes every stored submission and indicator of a form and
// rewinds its sync cursor. The registration and schema are kept.
func (s *FormService) ClearData(ctx context.Context, ref string) (int64, error) {
	form, err := s.Get(ctx, ref)
	if err != nil {
		return 0, err
	}
	n, err := s.subs.DeleteByForm(ctx, form.UID)
	if err != nil {
		return 0, err
	}
	if _, err := s.indicators.DeleteByForm(ctx, form.UID); err != nil {
		return n, err
	}
	if err := s.forms.ResetCursor(ctx, form.UID); err != nil {
		return n, err
	}
	s.log.Info("form data cleared", zap.String("form", form.UID), zap.Int64("deleted", n))
	return n, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
