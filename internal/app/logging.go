package app

import (
	"log/slog"
	"time"
)

// RequestLogger logs every request after the rest of the pipeline ran.
// Emulated calls log at Debug.
func RequestLogger(logger *slog.Logger) Middleware {
	return func(c *CallContext, next func() error) error {
		start := time.Now()
		err := next()

		level := slog.LevelInfo
		if c.caller != nil {
			level = slog.LevelDebug
		}
		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Status(),
			"duration", time.Since(start),
		}
		if c.caller != nil {
			attrs = append(attrs, "emulated", true)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.Log(c.Context(), level, "request", attrs...)
		return err
	}
}

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(method, path string, status int, emulated bool, d time.Duration)
}

// Instrument reports every request to obs. Requests that end in a pipeline
// error are reported with the status the error hook will assign.
func Instrument(obs RequestObserver) Middleware {
	return func(c *CallContext, next func() error) error {
		start := time.Now()
		err := next()

		status := c.Status()
		if err != nil {
			status = errorCode(err)
			if status < 400 || status > 599 {
				status = 500
			}
		}
		route := c.Path()
		if m := c.Module(); m != nil {
			route = m.Info.RelativeName
		}
		obs.ObserveRequest(c.Method(), route, status, c.caller != nil, time.Since(start))
		return err
	}
}
