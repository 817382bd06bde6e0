package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parisxmas/kobodash/internal/models"
)

const defaultConcurrency = 4

// RunAll syncs every registered form. A failing form does not stop the
// others; their errors are joined. Forms already syncing are skipped.
func (o *Orchestrator) RunAll(ctx context.Context, kind models.SyncKind) ([]*models.SyncLog, error) {
	forms, err := o.forms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}

	limit := o.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)

	results := make([]*models.SyncLog, len(forms))
	var (
		mu   sync.Mutex
		errs []error
	)
	for i, f := range forms {
		g.Go(func() error {
			l, err := o.Run(ctx, f.UID, kind)
			results[i] = l
			if err != nil && !errors.Is(err, ErrSyncInProgress) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", f.UID, err))
				mu.Unlock()
			}
			if errors.Is(err, ErrSyncInProgress) {
				o.log.Info("skipping form already syncing", zap.String("form", f.UID))
			}
			return nil
		})
	}
	g.Wait()

	logs := results[:0]
	for _, l := range results {
		if l != nil {
			logs = append(logs, l)
		}
	}
	return logs, errors.Join(errs...)
}
