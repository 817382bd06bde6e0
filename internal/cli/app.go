package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/config"
	"github.com/parisxmas/kobodash/internal/db"
	"github.com/parisxmas/kobodash/internal/kobo"
	"github.com/parisxmas/kobodash/internal/live"
	"github.com/parisxmas/kobodash/internal/logging"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/schemaindex"
	"github.com/parisxmas/kobodash/internal/service"
	"github.com/parisxmas/kobodash/internal/syncer"
)

// app holds every wired component. Commands build one, use what they need
// and close it.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *db.DB

	formRepo *repository.FormRepo
	subRepo  *repository.SubmissionRepo
	logRepo  *repository.SyncLogRepo
	indRepo  *repository.IndicatorRepo

	kobo  *kobo.Client
	cache *schemaindex.Cache
	orch  *syncer.Orchestrator
	hub   *live.Hub

	forms       *service.FormService
	submissions *service.SubmissionService
	search      *service.SearchService
	analytics   *service.AnalyticsService
	sync        *service.SyncService
	dashboard   *service.DashboardService
	indicators  *service.IndicatorService

	flushLog func()
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, flush, err := logging.New(cfg.LogLevel, cfg.GelfAddr)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	d, err := db.Open(cfg.DatabasePath)
	if err != nil {
		flush()
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: d, flushLog: flush}
	a.formRepo = repository.NewFormRepo(d)
	a.subRepo = repository.NewSubmissionRepo(d)
	a.logRepo = repository.NewSyncLogRepo(d)
	a.indRepo = repository.NewIndicatorRepo(d)

	a.kobo = kobo.New(cfg.KoboURL, cfg.KoboToken, cfg.KoboRequestTimeout(), log.Named("kobo"))
	if cfg.KoboPageSize > 0 {
		a.kobo.PageSize = cfg.KoboPageSize
	}
	a.cache = schemaindex.NewCache()
	a.orch = syncer.New(a.kobo, a.formRepo, a.subRepo, a.logRepo, a.cache, log.Named("syncer"))
	a.orch.Concurrency = cfg.SyncConcurrency

	a.forms = service.NewFormService(a.formRepo, a.subRepo, a.indRepo, a.kobo, a.cache, log.Named("forms"))
	a.submissions = service.NewSubmissionService(a.subRepo, a.forms)
	a.search = service.NewSearchService(a.forms, a.subRepo)
	a.analytics = service.NewAnalyticsService(a.forms, a.subRepo)
	a.sync = service.NewSyncService(a.orch, a.logRepo, a.forms)
	a.dashboard = service.NewDashboardService(a.formRepo, a.subRepo, a.logRepo)
	a.indicators = service.NewIndicatorService(a.forms, a.subRepo, a.indRepo, log.Named("indicators"))

	// Indicators are refreshed before clients hear about the update.
	a.hub = live.NewHub(log.Named("live"))
	a.orch.Observe(a.indicators, a.hub)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	a.flushLog()
}
