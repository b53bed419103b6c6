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

// Package defaults contains default constants set in various parts of
// the slipstream codebase.
package defaults

import "time"

const (
	// ControlPlaneRegion is the region serving the CDN and edge compute
	// control plane APIs. CloudFront and Lambda@Edge management calls are
	// only accepted in us-east-1.
	ControlPlaneRegion = "us-east-1"
)

const (
	// FunctionActivationPollInterval is how often the deployer polls a
	// freshly published edge function for the Active state.
	FunctionActivationPollInterval = 2 * time.Second

	// FunctionActivationTimeout bounds the total activation wait. Functions
	// still pending after this are reported as a timeout, never attached.
	FunctionActivationTimeout = 60 * time.Second
)

const (
	// ReconcileInterval is the cadence of the status reconciler scan.
	ReconcileInterval = 5 * time.Minute

	// PostCreatePollInterval is the delay between status checks of the
	// bounded post-creation monitor.
	PostCreatePollInterval = 30 * time.Second

	// PostCreateTimeout bounds the post-creation monitor as a whole.
	// Distributions still converging after this require manual follow-up.
	PostCreateTimeout = 2 * time.Hour
)

const (
	// PolicyWriteRetries is the number of times a policy grant or revoke
	// re-applies its merge after losing a write race on the same bucket.
	PolicyWriteRetries = 3

	// PolicyWriteRetryBase is the first backoff step between policy write
	// attempts.
	PolicyWriteRetryBase = 100 * time.Millisecond

	// PolicyWriteRetryMax caps the backoff between policy write attempts.
	PolicyWriteRetryMax = 2 * time.Second
)

// Default metadata table names, matching the provisioning templates.
const (
	OriginsTable       = "slipstream-origins"
	DistributionsTable = "slipstream-distributions"
	EdgeFunctionsTable = "slipstream-edge-functions"
	HistoryTable       = "slipstream-history"
)
