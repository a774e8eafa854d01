/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle runs a long-lived service with signal handling and an
// optional admin HTTP listener (health and metrics).
package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchsync/punchsync/pkg/logger"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Service is a runnable component managed by Run.
type Service interface {
	// Start runs the service until ctx is canceled.
	Start(ctx context.Context) error
	// Stop performs an orderly shutdown bounded by ctx.
	Stop(ctx context.Context) error
}

// Options configures Run.
type Options struct {
	ServiceName     string
	Service         Service
	ListenAddr      string
	Registry        *prometheus.Registry
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// Run starts the service, blocks until SIGINT/SIGTERM or service exit,
// then stops it within the shutdown timeout.
func Run(ctx context.Context, opts *Options) error {
	log := opts.Logger
	if log == nil {
		var err error

		log, err = logger.New(nil)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		adminSrv *http.Server
		adminWg  sync.WaitGroup
	)

	if opts.ListenAddr != "" {
		adminSrv = newAdminServer(opts)

		adminWg.Add(1)

		go func() {
			defer adminWg.Done()

			log.Info().Str("addr", opts.ListenAddr).Msg("Admin listener started")

			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Admin listener failed")
			}
		}()
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(ctx)
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
			log.Error().Err(err).Str("service", opts.ServiceName).Msg("Service exited with error")
		}
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Service stop failed")

		if runErr == nil {
			runErr = err
		}
	}

	if adminSrv != nil {
		if err := adminSrv.Shutdown(stopCtx); err != nil {
			log.Warn().Err(err).Msg("Admin listener shutdown failed")
		}

		adminWg.Wait()
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return runErr
}

func newAdminServer(opts *Options) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if opts.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// CreateComponentLogger creates a logger for a specific component.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	return logger.NewComponent(component, config)
}
