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

package bucketpolicy

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gravitational/trace"

	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
)

// PolicyClient describes the required methods to read and write S3 bucket
// policies.
type PolicyClient interface {
	// GetBucketPolicy returns the policy of a specified bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_GetBucketPolicy.html
	GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)

	// PutBucketPolicy applies a bucket policy to a specified bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_PutBucketPolicy.html
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)

	// DeleteBucketPolicy deletes the policy of a specified bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_DeleteBucketPolicy.html
	DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error)
}

type defaultPolicyClient struct {
	*s3.Client
}

// NewPolicyClient creates a PolicyClient using an AWS SDK config.
func NewPolicyClient(cfg aws.Config) PolicyClient {
	return &defaultPolicyClient{
		Client: s3.NewFromConfig(cfg),
	}
}

// fetchPolicyDocument reads the current bucket policy. A bucket without a
// policy yields an empty document.
func fetchPolicyDocument(ctx context.Context, clt PolicyClient, bucket string) (*PolicyDocument, error) {
	out, err := clt.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if awslib.IsErrorCode(err, "NoSuchBucketPolicy") {
			return NewPolicyDocument(), nil
		}
		return nil, trace.Wrap(awslib.ConvertError(err))
	}

	doc, err := ParsePolicyDocument(aws.ToString(out.Policy))
	return doc, trace.Wrap(err)
}

// writePolicyDocument writes the document back. A document left without
// statements deletes the bucket policy, as S3 rejects policies with an
// empty statement list.
func writePolicyDocument(ctx context.Context, clt PolicyClient, bucket string, doc *PolicyDocument) error {
	if doc.IsEmpty() {
		_, err := clt.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{
			Bucket: aws.String(bucket),
		})
		if err != nil && !awslib.IsErrorCode(err, "NoSuchBucketPolicy") {
			return trace.Wrap(awslib.ConvertError(err))
		}
		return nil
	}

	policy, err := doc.Marshal()
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = clt.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	})
	return trace.Wrap(awslib.ConvertError(err))
}
