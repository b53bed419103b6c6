/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package reconcile tracks the deployment status of distributions until
// CloudFront finishes propagating them. Freshly created distributions are
// watched by a bounded post-creation monitor started through a
// WorkflowTrigger, and a periodic sweep of all pending records catches the
// ones whose monitor never ran or gave up.
package reconcile

import (
	"log/slog"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/store"
)

// Config holds the dependencies of the reconciler.
type Config struct {
	// CloudFront is the client reporting distribution deployment status.
	CloudFront CloudFrontClient
	// Store persists distribution records and change history.
	Store *store.Store
	// ScanInterval is the cadence of the pending record sweep.
	ScanInterval time.Duration
	// PostCreateInterval is the delay between checks of the post-creation
	// monitor.
	PostCreateInterval time.Duration
	// PostCreateTimeout bounds the post-creation monitor as a whole.
	PostCreateTimeout time.Duration
	// Clock paces the sweeps and monitor waits.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks the config fields and sets defaults.
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.CloudFront == nil {
		return trace.BadParameter("cloudfront client is required")
	}
	if cfg.Store == nil {
		return trace.BadParameter("store is required")
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaults.ReconcileInterval
	}
	if cfg.PostCreateInterval <= 0 {
		cfg.PostCreateInterval = defaults.PostCreatePollInterval
	}
	if cfg.PostCreateTimeout <= 0 {
		cfg.PostCreateTimeout = defaults.PostCreateTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Service reconciles the stored deployment status of distributions with
// the status CloudFront reports.
type Service struct {
	cfg Config
	log *slog.Logger
}

// NewService returns a reconciler backed by the given clients.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Service{
		cfg: cfg,
		log: slog.With(slipstream.ComponentKey, slipstream.ComponentReconciler),
	}, nil
}
