// Package httpserver runs the admin API listener with graceful shutdown.
//
// Server is built with New or NewFromConfig and functional options for the
// listen address, timeouts and logger. Run blocks until its context is done
// and then drains in-flight requests within the shutdown timeout; wire it to
// signal.NotifyContext for SIGINT/SIGTERM handling.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// HealthCheckHandler serves liveness and readiness probes from a list of
// dependency checks such as pg.Healthcheck and redis.Healthcheck.
//
// Listen failures wrap ErrStart and shutdown failures wrap ErrShutdown.
package httpserver
