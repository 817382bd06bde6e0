package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parisxmas/kobodash/internal/handler"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/router"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sync scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.InsecureDefaults() {
		a.log.Warn("using the default JWT secret, set KOBODASH_JWT_SECRET")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.kobo.Ping(pingCtx); err != nil {
		a.log.Warn("upstream API not reachable, syncs will fail until it is", zap.String("url", a.cfg.KoboURL), zap.Error(err))
	}
	cancel()
	if a.cfg.WebhookPassHash == "" {
		a.log.Info("webhook endpoint disabled, no password hash configured")
	}

	mux := router.New(router.Options{
		JWTSecret:       a.cfg.JWTSecret,
		CORSOrigins:     a.cfg.CORSOrigins,
		WebhookUser:     a.cfg.WebhookUser,
		WebhookPassHash: a.cfg.WebhookPassHash,
	}, router.Handlers{
		Forms:       handler.NewFormHandler(a.forms),
		Submissions: handler.NewSubmissionHandler(a.submissions),
		Search:      handler.NewSearchHandler(a.search),
		Analytics:   handler.NewAnalyticsHandler(a.analytics),
		Sync:        handler.NewSyncHandler(a.sync),
		Dashboard:   handler.NewDashboardHandler(a.dashboard, a.db, Version),
		Admin:       handler.NewAdminHandler(a.db),
		Indicators:  handler.NewIndicatorHandler(a.indicators),
		Live:        handler.NewLiveHandler(a.hub, a.forms, a.cfg.CORSOrigins),
	}, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("kobodash listening", zap.String("addr", a.cfg.HTTPAddr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfg.SyncInterval > 0 {
		g.Go(func() error {
			schedule(ctx, a, time.Duration(a.cfg.SyncInterval)*time.Minute)
			return nil
		})
	}
	return g.Wait()
}

// schedule runs an incremental sync of every registered form on each tick
// until ctx is done.
func schedule(ctx context.Context, a *app, every time.Duration) {
	a.log.Info("periodic sync enabled", zap.Duration("interval", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logs, err := a.orch.RunAll(ctx, models.SyncIncremental)
			if err != nil && ctx.Err() == nil {
				a.log.Warn("periodic sync finished with errors", zap.Error(err))
			}
			a.log.Info("periodic sync done", zap.Int("forms", len(logs)))
		}
	}
}
