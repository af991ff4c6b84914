package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("deckd starting", "addr", r.cfg.HTTPAddr, "db_path", r.cfg.DBPath)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.driver.Run(groupCtx)
	})
	group.Go(func() error {
		return r.watcher.Start(groupCtx)
	})
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if r.reloadCron != nil {
		group.Go(func() error {
			return r.runReloadCron(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// runReloadCron re-runs the load script on the configured schedule, so a
// deck driven from a spreadsheet export picks up edits overnight.
func (r *Runtime) runReloadCron(ctx context.Context) error {
	for {
		next := r.reloadCron.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.logger.Info("scheduled button reload", "expression", r.cfg.ReloadCron)
			r.driver.RequestReload()
		}
	}
}

func (r *Runtime) Close() error {
	if r.device != nil {
		r.device.Close()
	}
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
