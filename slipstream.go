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

// Package slipstream contains identifiers shared across the Slipstream
// distribution control plane.
package slipstream

import "strings"

// ComponentKey is the name of the log attribute containing the component name.
const ComponentKey = "component"

const (
	// ComponentOrigins is the origin lifecycle manager.
	ComponentOrigins = "origins"

	// ComponentDistributions is the distribution lifecycle manager.
	ComponentDistributions = "distributions"

	// ComponentEdgeFunc is the edge routing function generator and deployer.
	ComponentEdgeFunc = "edgefunc"

	// ComponentReconciler is the deployment status reconciler.
	ComponentReconciler = "reconciler"

	// ComponentBucketPolicy is the bucket policy merger.
	ComponentBucketPolicy = "bucketpolicy"

	// ComponentStore is the metadata store.
	ComponentStore = "store"
)

// Component generates a component name joining all parts, typically used
// to tag the loggers of subsystems.
func Component(parts ...string) string {
	return strings.Join(parts, ":")
}
