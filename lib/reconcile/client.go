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

package reconcile

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// CloudFrontClient describes the CloudFront methods used to observe
// deployment status.
type CloudFrontClient interface {
	// GetDistribution returns a distribution, including its current
	// deployment status.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_GetDistribution.html
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
}

// NewCloudFrontClient returns a CloudFrontClient for the given config.
func NewCloudFrontClient(cfg aws.Config) CloudFrontClient {
	return cloudfront.NewFromConfig(cfg)
}

// SFNClient describes the Step Functions methods used by the workflow
// trigger.
type SFNClient interface {
	// StartExecution starts an execution of a state machine.
	// https://docs.aws.amazon.com/step-functions/latest/apireference/API_StartExecution.html
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// NewSFNClient returns an SFNClient for the given config.
func NewSFNClient(cfg aws.Config) SFNClient {
	return sfn.NewFromConfig(cfg)
}
