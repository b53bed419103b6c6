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
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream/lib/bucketpolicy"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/edgefunc"
	"github.com/gravitational/slipstream/lib/store"
)

const (
	// managedCachePolicyID is the CachingOptimized managed cache policy.
	// https://docs.aws.amazon.com/AmazonCloudFront/latest/DeveloperGuide/using-managed-cache-policies.html
	managedCachePolicyID = "658327ea-f89d-4fab-a63d-7e88639e58f6"

	defaultRootObject = "index.html"

	originConnectionAttempts       = 3
	originConnectionTimeoutSeconds = 10
)

// originAccessIdentityPath returns the identity reference CloudFront
// expects in S3 origin configurations.
func originAccessIdentityPath(oaiID string) string {
	return fmt.Sprintf("origin-access-identity/cloudfront/%s", oaiID)
}

// CreateDistributionRequest is a request to create a distribution.
type CreateDistributionRequest struct {
	// Name is the user-facing distribution name, also used to derive
	// caller references.
	Name string
	// OriginID is the origin served by a single-origin distribution.
	OriginID string
	// MultiOriginConfig requests a multi-origin distribution routing
	// across the listed origins. Mutually exclusive with OriginID.
	MultiOriginConfig *store.MultiOriginConfig
	// CreatedBy records who requested the distribution. Defaults to
	// "system".
	CreatedBy string
}

// CheckAndSetDefaults checks the request fields and sets defaults.
func (req *CreateDistributionRequest) CheckAndSetDefaults() error {
	if req.Name == "" {
		return trace.BadParameter("name is required")
	}
	if req.MultiOriginConfig == nil {
		if req.OriginID == "" {
			return trace.BadParameter("origin id is required")
		}
	} else {
		if req.OriginID != "" {
			return trace.BadParameter("origin id and multi origin config are mutually exclusive")
		}
		if req.MultiOriginConfig.Preset == "" {
			return trace.BadParameter("preset is required")
		}
		if req.MultiOriginConfig.DefaultOriginID == "" {
			return trace.BadParameter("default origin id is required")
		}
	}
	if req.CreatedBy == "" {
		req.CreatedBy = store.SystemUser
	}
	return nil
}

// CreateDistribution creates a CloudFront distribution serving one or
// several registered origins and persists its record. It returns before
// the distribution finishes propagating, the configured workflow trigger
// and the periodic reconciler track deployment afterwards.
func (s *Service) CreateDistribution(ctx context.Context, req CreateDistributionRequest) (*store.Distribution, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if req.MultiOriginConfig != nil {
		return s.createMultiOrigin(ctx, req)
	}
	return s.createSingleOrigin(ctx, req)
}

// createSingleOrigin serves one origin through the origin access control
// created alongside it. The access control already lets CloudFront read
// the bucket, so no bucket policy update is involved here.
func (s *Service) createSingleOrigin(ctx context.Context, req CreateDistributionRequest) (*store.Distribution, error) {
	origin, err := s.cfg.Store.GetOrigin(ctx, req.OriginID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out, err := s.cfg.CloudFront.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: s.singleOriginConfig(req.Name, origin),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	cdnID := aws.ToString(out.Distribution.Id)

	distributionID := NewDistributionID()
	if err := s.cfg.Store.AddOriginDistribution(ctx, origin.OriginID, distributionID); err != nil {
		return nil, trace.Wrap(err, "distribution %v was created but linking it to origin %v failed, delete the distribution or retry", cdnID, origin.OriginID)
	}

	record := &store.Distribution{
		DistributionID: distributionID,
		Name:           req.Name,
		CDNID:          cdnID,
		ARN:            aws.ToString(out.Distribution.ARN),
		DomainName:     aws.ToString(out.Distribution.DomainName),
		Status:         store.Status(aws.ToString(out.Distribution.Status)),
		OriginID:       origin.OriginID,
		CreatedBy:      req.CreatedBy,
	}
	if err := s.cfg.Store.PutDistribution(ctx, record); err != nil {
		return nil, trace.Wrap(err, "distribution %v was created but persisting its record failed", cdnID)
	}

	s.log.InfoContext(ctx, "Created distribution.",
		"distribution", distributionID,
		"cloudfront_id", cdnID,
		"origin", origin.OriginID,
	)
	s.startDeploymentMonitor(ctx, distributionID, cdnID)
	return record, nil
}

// createMultiOrigin routes one distribution across several origin buckets.
// A generated Lambda@Edge function rewrites each request to the bucket
// mapped to the viewer's edge region, and a shared origin access identity
// grants the distribution read access on every member bucket.
func (s *Service) createMultiOrigin(ctx context.Context, req CreateDistributionRequest) (*store.Distribution, error) {
	if s.cfg.EdgeFunctionRoleARN == "" {
		return nil, trace.BadParameter("edge function role ARN is required to create multi-origin distributions")
	}
	mc := req.MultiOriginConfig

	// Resolve every member origin up front so a bad reference cannot
	// leave partial resources behind.
	defaultOrigin, err := s.cfg.Store.GetOrigin(ctx, mc.DefaultOriginID)
	if err != nil {
		return nil, trace.Wrap(err, "resolving default origin %v", mc.DefaultOriginID)
	}
	origins := []*store.Origin{defaultOrigin}
	additionalDomains := make([]string, 0, len(mc.AdditionalOriginIDs))
	for _, originID := range mc.AdditionalOriginIDs {
		origin, err := s.cfg.Store.GetOrigin(ctx, originID)
		if err != nil {
			return nil, trace.Wrap(err, "resolving additional origin %v", originID)
		}
		origins = append(origins, origin)
		additionalDomains = append(additionalDomains, edgefunc.OriginDomain(origin.BucketName, origin.Region))
	}

	// Generating the routing code is pure and validates the preset and
	// origin count, still before any side effect.
	code, err := edgefunc.Generate(edgefunc.GenerateRequest{
		Preset:                  mc.Preset,
		DefaultOriginDomain:     edgefunc.OriginDomain(defaultOrigin.BucketName, defaultOrigin.Region),
		AdditionalOriginDomains: additionalDomains,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	oaiID, err := s.createOriginAccessIdentity(ctx, req.Name)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	functionID := edgefunc.NewFunctionID()
	functionName := edgefunc.FunctionName(req.Name, functionID)
	deployed, err := edgefunc.Deploy(ctx, s.cfg.Lambda, edgefunc.DeployRequest{
		FunctionName: functionName,
		RoleARN:      s.cfg.EdgeFunctionRoleARN,
		Code:         code,
		Clock:        s.cfg.Clock,
	})
	if err != nil {
		return nil, trace.Wrap(err, "deploying the routing function failed, origin access identity %v is left behind", oaiID)
	}

	fnRecord := &store.EdgeFunction{
		FunctionID:   functionID,
		FunctionName: functionName,
		ARN:          deployed.FunctionARN,
		VersionARN:   deployed.VersionARN,
		Preset:       mc.Preset,
		OriginIDs:    originIDs(origins),
		Status:       "Active",
		CreatedBy:    req.CreatedBy,
	}
	if err := s.cfg.Store.PutEdgeFunction(ctx, fnRecord); err != nil {
		return nil, trace.Wrap(err, "persisting the routing function record failed, already created: origin access identity %v, routing function %v", oaiID, deployed.VersionARN)
	}

	out, err := s.cfg.CloudFront.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: s.multiOriginConfig(req.Name, origins, defaultOrigin.OriginID, oaiID, deployed.VersionARN),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err), "creating the distribution failed, already created: origin access identity %v, routing function %v", oaiID, deployed.VersionARN)
	}
	cdnID := aws.ToString(out.Distribution.Id)

	// Grant the identity read access on every member bucket. Failures do
	// not abort the create, CloudFront serves errors from the affected
	// bucket until the grant is applied.
	principal := bucketpolicy.OriginAccessIdentityUserARN(oaiID)
	for _, origin := range origins {
		err := bucketpolicy.GrantAccess(ctx, s.cfg.Policy, bucketpolicy.AccessRequest{
			Bucket:    origin.BucketName,
			Kind:      bucketpolicy.GrantKindDistribution,
			Principal: principal,
			Clock:     s.cfg.Clock,
		})
		if err != nil {
			s.log.WarnContext(ctx, "Failed to grant bucket access to the origin access identity.",
				"bucket", origin.BucketName,
				"origin_access_identity", oaiID,
				"error", err,
			)
		}
	}

	distributionID := NewDistributionID()
	for _, origin := range origins {
		if err := s.cfg.Store.AddOriginDistribution(ctx, origin.OriginID, distributionID); err != nil {
			return nil, trace.Wrap(err, "distribution %v was created but linking it to origin %v failed, already created: origin access identity %v, routing function %v", cdnID, origin.OriginID, oaiID, deployed.VersionARN)
		}
	}

	record := &store.Distribution{
		DistributionID:    distributionID,
		Name:              req.Name,
		CDNID:             cdnID,
		ARN:               aws.ToString(out.Distribution.ARN),
		DomainName:        aws.ToString(out.Distribution.DomainName),
		Status:            store.Status(aws.ToString(out.Distribution.Status)),
		MultiOrigin:       true,
		MultiOriginConfig: mc,
		EdgeFunctionID:    functionID,
		EdgeFunctionName:  functionName,
		OAIID:             oaiID,
		CreatedBy:         req.CreatedBy,
	}
	if err := s.cfg.Store.PutDistribution(ctx, record); err != nil {
		return nil, trace.Wrap(err, "distribution %v was created but persisting its record failed, already created: origin access identity %v, routing function %v", cdnID, oaiID, deployed.VersionARN)
	}

	s.log.InfoContext(ctx, "Created multi-origin distribution.",
		"distribution", distributionID,
		"cloudfront_id", cdnID,
		"preset", mc.Preset,
		"origins", len(origins),
	)
	s.startDeploymentMonitor(ctx, distributionID, cdnID)
	return record, nil
}

func (s *Service) createOriginAccessIdentity(ctx context.Context, name string) (string, error) {
	out, err := s.cfg.CloudFront.CreateCloudFrontOriginAccessIdentity(ctx, &cloudfront.CreateCloudFrontOriginAccessIdentityInput{
		CloudFrontOriginAccessIdentityConfig: &types.CloudFrontOriginAccessIdentityConfig{
			CallerReference: aws.String(fmt.Sprintf("%s-oai-%d", name, s.cfg.Clock.Now().Unix())),
			Comment:         aws.String(fmt.Sprintf("OAI for multi-origin distribution: %s", name)),
		},
	})
	if err != nil {
		return "", trace.Wrap(awslib.ConvertError(err))
	}
	return aws.ToString(out.CloudFrontOriginAccessIdentity.Id), nil
}

func (s *Service) callerReference(name string) string {
	return fmt.Sprintf("%s-%d", name, s.cfg.Clock.Now().Unix())
}

func (s *Service) singleOriginConfig(name string, origin *store.Origin) *types.DistributionConfig {
	return &types.DistributionConfig{
		CallerReference:   aws.String(s.callerReference(name)),
		Comment:           aws.String(name),
		Enabled:           aws.Bool(true),
		DefaultRootObject: aws.String(defaultRootObject),
		Origins: &types.Origins{
			Quantity: aws.Int32(1),
			Items:    []types.Origin{s3Origin(origin, origin.OACID, "")},
		},
		DefaultCacheBehavior: s.defaultCacheBehavior(origin.OriginID, ""),
		PriceClass:           types.PriceClassPriceClass100,
		HttpVersion:          types.HttpVersionHttp2and3,
	}
}

func (s *Service) multiOriginConfig(name string, origins []*store.Origin, defaultOriginID, oaiID, edgeFunctionARN string) *types.DistributionConfig {
	items := make([]types.Origin, 0, len(origins))
	for _, origin := range origins {
		items = append(items, s3Origin(origin, "", oaiID))
	}
	return &types.DistributionConfig{
		CallerReference:   aws.String(s.callerReference(name)),
		Comment:           aws.String(name),
		Enabled:           aws.Bool(true),
		DefaultRootObject: aws.String(defaultRootObject),
		Origins: &types.Origins{
			Quantity: aws.Int32(int32(len(items))),
			Items:    items,
		},
		DefaultCacheBehavior: s.defaultCacheBehavior(defaultOriginID, edgeFunctionARN),
		PriceClass:           types.PriceClassPriceClass100,
		HttpVersion:          types.HttpVersionHttp2and3,
	}
}

// s3Origin builds the CloudFront origin entry for an origin bucket.
// Exactly one of oacID and oaiID is set: single-origin distributions
// attach the origin's own access control, multi-origin distributions
// share one access identity across all member buckets.
func s3Origin(origin *store.Origin, oacID, oaiID string) types.Origin {
	identity := ""
	if oaiID != "" {
		identity = originAccessIdentityPath(oaiID)
	}
	entry := types.Origin{
		Id:         aws.String(origin.OriginID),
		DomainName: aws.String(edgefunc.OriginDomain(origin.BucketName, origin.Region)),
		OriginPath: aws.String(""),
		S3OriginConfig: &types.S3OriginConfig{
			OriginAccessIdentity: aws.String(identity),
		},
		ConnectionAttempts: aws.Int32(originConnectionAttempts),
		ConnectionTimeout:  aws.Int32(originConnectionTimeoutSeconds),
		OriginShield: &types.OriginShield{
			Enabled: aws.Bool(false),
		},
	}
	if oacID != "" {
		entry.OriginAccessControlId = aws.String(oacID)
	}
	return entry
}

func (s *Service) defaultCacheBehavior(targetOriginID, edgeFunctionARN string) *types.DefaultCacheBehavior {
	behavior := &types.DefaultCacheBehavior{
		TargetOriginId:       aws.String(targetOriginID),
		ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
		AllowedMethods: &types.AllowedMethods{
			Quantity: aws.Int32(2),
			Items:    []types.Method{types.MethodGet, types.MethodHead},
			CachedMethods: &types.CachedMethods{
				Quantity: aws.Int32(2),
				Items:    []types.Method{types.MethodGet, types.MethodHead},
			},
		},
		CachePolicyId: aws.String(s.cfg.CachePolicyID),
		Compress:      aws.Bool(false),
		TrustedSigners: &types.TrustedSigners{
			Enabled:  aws.Bool(false),
			Quantity: aws.Int32(0),
		},
		TrustedKeyGroups: &types.TrustedKeyGroups{
			Enabled:  aws.Bool(false),
			Quantity: aws.Int32(0),
		},
	}
	if edgeFunctionARN != "" {
		behavior.LambdaFunctionAssociations = &types.LambdaFunctionAssociations{
			Quantity: aws.Int32(1),
			Items: []types.LambdaFunctionAssociation{{
				// Lambda@Edge only accepts published version ARNs.
				LambdaFunctionARN: aws.String(edgeFunctionARN),
				EventType:         types.EventTypeOriginRequest,
				IncludeBody:       aws.Bool(false),
			}},
		}
	}
	return behavior
}

func originIDs(origins []*store.Origin) []string {
	ids := make([]string, 0, len(origins))
	for _, origin := range origins {
		ids = append(ids, origin.OriginID)
	}
	return ids
}
