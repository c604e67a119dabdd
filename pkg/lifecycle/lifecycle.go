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

// Package lifecycle manages service startup and shutdown.
package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/termbridge/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Service is the contract a long-running component implements to be
// managed by Run. Start blocks until the context is canceled or the
// service fails; Stop releases resources and must be safe to call once
// Start has returned.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerOptions configures a Run invocation.
type ServerOptions struct {
	ServiceName string
	Service     Service
	Logger      logger.Logger
}

// Run starts the service and blocks until SIGINT/SIGTERM or a service
// failure, then performs a bounded graceful stop.
func Run(ctx context.Context, opts *ServerOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := opts.Logger
	if log == nil {
		log = NewNopLogger()
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(ctx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("service", opts.ServiceName).Msg("Service failed")
			return err
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error during shutdown")
		return err
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return nil
}

// NewNopLogger returns a logger that discards everything. Used when Run
// is invoked without an explicit logger.
func NewNopLogger() logger.Logger {
	return logger.NewTestLogger()
}
