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

package store

import "time"

// Status is the deployment status of a distribution as last observed from
// CloudFront.
type Status string

const (
	// StatusCreating is set when the distribution record is written,
	// before the first status check.
	StatusCreating Status = "Creating"
	// StatusInProgress means CloudFront is still propagating the
	// distribution configuration.
	StatusInProgress Status = "InProgress"
	// StatusDeployed means the distribution is fully propagated.
	StatusDeployed Status = "Deployed"
	// StatusDisabling means a delete was requested on an enabled
	// distribution and the disable update has been submitted.
	StatusDisabling Status = "Disabling"
	// StatusFailed means CloudFront reported a failure.
	StatusFailed Status = "Failed"
)

// IsTerminal returns true once the deployment no longer needs tracking.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDeployed, StatusFailed:
		return true
	}
	return false
}

// IsPending returns true while CloudFront is still converging and the
// status needs tracking. Disabling records are neither pending nor
// terminal, they belong to the delete flow.
func (s Status) IsPending() bool {
	switch s {
	case StatusCreating, StatusInProgress:
		return true
	}
	return false
}

// Origin is the record of an origin bucket managed by the control plane.
type Origin struct {
	// OriginID is the unique identifier of the origin.
	OriginID string `dynamodbav:"originId"`
	// Name is the user-facing name of the origin.
	Name string `dynamodbav:"name"`
	// BucketName is the S3 bucket backing the origin.
	BucketName string `dynamodbav:"bucketName"`
	// Region is the AWS region the bucket lives in.
	Region string `dynamodbav:"region"`
	// WebsiteEnabled is true when the bucket also serves as a static
	// website.
	WebsiteEnabled bool `dynamodbav:"isWebsiteEnabled"`
	// Website holds the website document configuration, when enabled.
	Website *WebsiteConfig `dynamodbav:"websiteConfiguration,omitempty"`
	// OACID is the origin access control created for the bucket.
	OACID string `dynamodbav:"oacId"`
	// UsedBy is the set of distribution IDs currently using the origin.
	// Mutated only through atomic set updates, never rewritten wholesale.
	UsedBy []string `dynamodbav:"associatedDistributions,stringset,omitempty"`
	// CreatedBy records who created the origin.
	CreatedBy string `dynamodbav:"createdBy,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `dynamodbav:"createdAt"`
	// UpdatedAt is the last modification time.
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// WebsiteConfig is the website hosting configuration of an origin bucket.
type WebsiteConfig struct {
	// IndexDocument is the index document object key.
	IndexDocument string `dynamodbav:"indexDocument"`
	// ErrorDocument is the error document object key.
	ErrorDocument string `dynamodbav:"errorDocument"`
}

// Distribution is the record of a CDN distribution managed by the control
// plane.
type Distribution struct {
	// DistributionID is the unique identifier of the distribution record.
	DistributionID string `dynamodbav:"distributionId"`
	// Name is the user-facing name of the distribution.
	Name string `dynamodbav:"name"`
	// CDNID is the CloudFront distribution ID.
	CDNID string `dynamodbav:"cloudfrontId"`
	// ARN is the CloudFront distribution ARN.
	ARN string `dynamodbav:"arn"`
	// DomainName is the CloudFront domain name serving the distribution.
	DomainName string `dynamodbav:"domainName"`
	// Status is the last observed deployment status.
	Status Status `dynamodbav:"status"`
	// OriginID is the origin a single-origin distribution serves. Empty
	// for multi-origin distributions, which list their origins in
	// MultiOriginConfig.
	OriginID string `dynamodbav:"originId,omitempty"`
	// MultiOrigin is true for distributions routing across several
	// origins with an edge function.
	MultiOrigin bool `dynamodbav:"isMultiOrigin"`
	// MultiOriginConfig records the routing preset and member origins.
	// Only set when MultiOrigin is true.
	MultiOriginConfig *MultiOriginConfig `dynamodbav:"multiOriginConfig,omitempty"`
	// EdgeFunctionID is the record ID of the routing function deployed
	// for a multi-origin distribution.
	EdgeFunctionID string `dynamodbav:"lambdaEdgeFunctionId,omitempty"`
	// EdgeFunctionName is the Lambda function name of the routing
	// function.
	EdgeFunctionName string `dynamodbav:"lambdaEdgeFunctionName,omitempty"`
	// OAIID is the origin access identity created for a multi-origin
	// distribution.
	OAIID string `dynamodbav:"oaiId,omitempty"`
	// Version counts the record updates, starting at 1.
	Version int64 `dynamodbav:"version"`
	// CreatedBy records who created the distribution.
	CreatedBy string `dynamodbav:"createdBy,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `dynamodbav:"createdAt"`
	// UpdatedAt is the last modification time.
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// MultiOriginConfig records the routing preset and member origins of a
// multi-origin distribution. Additional origins keep their request order,
// which decides the routing table slot each one fills.
type MultiOriginConfig struct {
	// Preset is the region mapping preset name.
	Preset string `dynamodbav:"preset"`
	// DefaultOriginID is the origin serving unmapped regions.
	DefaultOriginID string `dynamodbav:"defaultOrigin"`
	// AdditionalOriginIDs are the origins filling the preset's numbered
	// slots, in order.
	AdditionalOriginIDs []string `dynamodbav:"additionalOrigins"`
}

// EdgeFunction is the record of a deployed edge routing function.
type EdgeFunction struct {
	// FunctionID is the unique identifier of the function record.
	FunctionID string `dynamodbav:"functionId"`
	// FunctionName is the Lambda function name.
	FunctionName string `dynamodbav:"functionName"`
	// ARN is the unqualified function ARN.
	ARN string `dynamodbav:"functionArn"`
	// VersionARN is the published version ARN associated with the
	// distribution. Lambda@Edge only accepts versioned ARNs.
	VersionARN string `dynamodbav:"versionArn"`
	// Preset is the region mapping preset the function was generated
	// from.
	Preset string `dynamodbav:"preset"`
	// OriginIDs are the origins wired into the routing table, default
	// origin first.
	OriginIDs []string `dynamodbav:"origins"`
	// Status is the function lifecycle status.
	Status string `dynamodbav:"status"`
	// CreatedBy records who deployed the function.
	CreatedBy string `dynamodbav:"createdBy,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `dynamodbav:"createdAt"`
	// UpdatedAt is the last modification time.
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// HistoryEntry is an audit record of a distribution change. Entries are
// keyed by distribution ID and timestamp.
type HistoryEntry struct {
	// DistributionID is the distribution the entry belongs to.
	DistributionID string `dynamodbav:"distributionId"`
	// Timestamp is the time of the change.
	Timestamp time.Time `dynamodbav:"timestamp"`
	// Action describes the change, such as STATUS_CHANGED or delete.
	Action string `dynamodbav:"action"`
	// User is who made the change, or "system" for reconciler updates.
	User string `dynamodbav:"user"`
	// Version is the record version after the change, when applicable.
	Version int64 `dynamodbav:"version,omitempty"`
	// PreviousStatus is the status before a status change.
	PreviousStatus Status `dynamodbav:"previousStatus,omitempty"`
	// NewStatus is the status after a status change.
	NewStatus Status `dynamodbav:"newStatus,omitempty"`
	// Details carries additional free-form context.
	Details map[string]string `dynamodbav:"details,omitempty"`
}

// History entry actions.
const (
	// ActionStatusChanged records a deployment status transition observed
	// by the reconciler.
	ActionStatusChanged = "STATUS_CHANGED"
	// ActionInvalidation records a cache invalidation request.
	ActionInvalidation = "INVALIDATION"
	// ActionDelete records a distribution deletion.
	ActionDelete = "delete"
)

// SystemUser marks changes made by the reconciler rather than a person.
const SystemUser = "system"
