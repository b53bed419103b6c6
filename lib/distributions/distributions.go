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

// Package distributions manages CloudFront distributions backed by
// registered origins. A distribution either serves a single origin through
// that origin's access control, or routes across several origins with a
// generated Lambda@Edge function and a shared origin access identity.
package distributions

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	"github.com/gravitational/slipstream/lib/bucketpolicy"
	"github.com/gravitational/slipstream/lib/edgefunc"
	"github.com/gravitational/slipstream/lib/store"
)

// WorkflowTrigger starts the deployment monitor for a freshly created
// distribution. Implementations either hand off to an external workflow
// engine or watch in-process, see lib/reconcile.
type WorkflowTrigger interface {
	// StartDeploymentMonitor begins watching the CloudFront distribution
	// until it settles in a terminal status.
	StartDeploymentMonitor(ctx context.Context, distributionID, cdnID string) error
}

// Config holds the dependencies of the distribution service.
type Config struct {
	// CloudFront is the client managing distributions, origin access
	// identities and invalidations.
	CloudFront CloudFrontClient
	// Lambda is the client deploying edge routing functions. Lambda@Edge
	// requires clients built for us-east-1.
	Lambda edgefunc.LambdaClient
	// Policy is the client updating origin bucket policies.
	Policy bucketpolicy.PolicyClient
	// Store persists distribution, origin and edge function records.
	Store *store.Store
	// Trigger starts the post-creation deployment monitor. Optional,
	// creation proceeds without monitoring when unset.
	Trigger WorkflowTrigger
	// EdgeFunctionRoleARN is the execution role assumed by edge routing
	// functions. Required to create multi-origin distributions.
	EdgeFunctionRoleARN string
	// CachePolicyID overrides the cache policy attached to the default
	// behavior. Defaults to the managed CachingOptimized policy.
	CachePolicyID string
	// Clock is used for caller references and edge function activation
	// polling.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks the config fields and sets defaults.
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.CloudFront == nil {
		return trace.BadParameter("cloudfront client is required")
	}
	if cfg.Lambda == nil {
		return trace.BadParameter("lambda client is required")
	}
	if cfg.Policy == nil {
		return trace.BadParameter("policy client is required")
	}
	if cfg.Store == nil {
		return trace.BadParameter("store is required")
	}
	if cfg.CachePolicyID == "" {
		cfg.CachePolicyID = managedCachePolicyID
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Service creates, deletes and invalidates distributions.
type Service struct {
	cfg Config
	log *slog.Logger
}

// NewService returns a distribution service backed by the given clients.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Service{
		cfg: cfg,
		log: slog.With(slipstream.ComponentKey, slipstream.ComponentDistributions),
	}, nil
}

// NewDistributionID returns a new distribution record identifier.
func NewDistributionID() string {
	return uuid.NewString()
}

func (s *Service) startDeploymentMonitor(ctx context.Context, distributionID, cdnID string) {
	if s.cfg.Trigger == nil {
		s.log.DebugContext(ctx, "No deployment monitor configured.", "distribution", distributionID)
		return
	}
	if err := s.cfg.Trigger.StartDeploymentMonitor(ctx, distributionID, cdnID); err != nil {
		s.log.WarnContext(ctx, "Failed to start deployment monitor, the reconciler will pick the distribution up on its next pass.",
			"distribution", distributionID,
			"cloudfront_id", cdnID,
			"error", err,
		)
	}
}
