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

// Package origins manages origin buckets, the S3 buckets distributions
// serve content from, together with the CloudFront access configuration
// each bucket needs.
package origins

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	"github.com/gravitational/slipstream/lib/store"
)

// Config holds the dependencies of the origin service.
type Config struct {
	// S3 is the client managing origin buckets. Clients must be built for
	// the region the buckets are created in.
	S3 S3Client
	// CloudFront is the client managing origin access controls.
	CloudFront CloudFrontClient
	// Store persists origin records.
	Store *store.Store
	// Clock is used to timestamp origin access control names.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks the config fields and sets defaults.
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.S3 == nil {
		return trace.BadParameter("s3 client is required")
	}
	if cfg.CloudFront == nil {
		return trace.BadParameter("cloudfront client is required")
	}
	if cfg.Store == nil {
		return trace.BadParameter("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Service creates and deletes origins.
type Service struct {
	cfg Config
	log *slog.Logger
}

// NewService returns an origin service backed by the given clients.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Service{
		cfg: cfg,
		log: slog.With(slipstream.ComponentKey, slipstream.ComponentOrigins),
	}, nil
}

// NewOriginID returns a new origin record identifier.
func NewOriginID() string {
	return fmt.Sprintf("origin-%s", uuid.NewString()[:8])
}
