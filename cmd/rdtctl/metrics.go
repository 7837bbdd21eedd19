package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/rdtctl/internal/observability"
	"github.com/rs/zerolog/log"
)

// startMetrics serves /metrics on addr until the returned stop func runs. An
// empty addr disables the endpoint.
func startMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	observability.RegisterMetrics()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
