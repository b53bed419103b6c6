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

package distributions

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
)

// CloudFrontClient describes the required methods of the CloudFront API.
type CloudFrontClient interface {
	// CreateDistribution creates a CloudFront distribution.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_CreateDistribution.html
	CreateDistribution(ctx context.Context, params *cloudfront.CreateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionOutput, error)

	// GetDistribution returns a distribution, including the ETag required
	// to update or delete it.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_GetDistribution.html
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)

	// UpdateDistribution replaces the configuration of a distribution.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_UpdateDistribution.html
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)

	// DeleteDistribution deletes a disabled distribution.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_DeleteDistribution.html
	DeleteDistribution(ctx context.Context, params *cloudfront.DeleteDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionOutput, error)

	// CreateCloudFrontOriginAccessIdentity creates an origin access
	// identity.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_CreateCloudFrontOriginAccessIdentity.html
	CreateCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.CreateCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateCloudFrontOriginAccessIdentityOutput, error)

	// GetCloudFrontOriginAccessIdentity returns an origin access identity,
	// including the ETag required to delete it.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_GetCloudFrontOriginAccessIdentity.html
	GetCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.GetCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetCloudFrontOriginAccessIdentityOutput, error)

	// DeleteCloudFrontOriginAccessIdentity deletes an origin access
	// identity.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_DeleteCloudFrontOriginAccessIdentity.html
	DeleteCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.DeleteCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteCloudFrontOriginAccessIdentityOutput, error)

	// CreateInvalidation submits a cache invalidation batch.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_CreateInvalidation.html
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

type defaultCloudFrontClient struct {
	*cloudfront.Client
}

// NewCloudFrontClient returns a CloudFrontClient for the given config.
func NewCloudFrontClient(cfg aws.Config) CloudFrontClient {
	return &defaultCloudFrontClient{
		Client: cloudfront.NewFromConfig(cfg),
	}
}
