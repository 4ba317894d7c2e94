package app

import (
	"context"
	"errors"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
)

// Shutdown stops intake first, then background jobs, then the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	var errs []error

	if a.srvWS != nil {
		if err := a.srvWS.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.gateway != nil {
		if err := a.gateway.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if a.api != nil {
		a.api.Close()
	}
	if a.stopPurg != nil {
		a.stopPurg()
	}
	if a.sensor != nil {
		a.sensor.Stop()
	}
	if a.tel != nil {
		metrics.SetObserver(nil)
		a.tel.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("shutdown_incomplete", "error", err)
		return err
	}
	a.state = "stopped"
	logger.Info("shutdown_complete")
	return nil
}
