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

// Package aws contains helpers shared by the packages that drive AWS
// services, most notably conversion of AWS SDK errors into trace errors.
package aws

import (
	"errors"
	"net/http"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/aws/smithy-go"
	"github.com/gravitational/trace"
)

// ConvertRequestFailureError converts failed AWS SDK v2 requests to trace
// errors based on the HTTP status code of the response.
//
// If the error is not recognized, returns the original error.
func ConvertRequestFailureError(err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return convertRequestFailureErrorFromStatusCode(re.HTTPStatusCode(), re)
	}
	return err
}

func convertRequestFailureErrorFromStatusCode(statusCode int, requestErr error) error {
	switch statusCode {
	case http.StatusForbidden:
		return trace.AccessDenied("%s", requestErr.Error())
	case http.StatusConflict:
		return trace.AlreadyExists("%s", requestErr.Error())
	case http.StatusNotFound:
		return trace.NotFound("%s", requestErr.Error())
	case http.StatusBadRequest:
		// DynamoDB and a few other services report access denied with
		// a 400 status code instead of a 403.
		if strings.Contains(requestErr.Error(), "AccessDeniedException") {
			return trace.AccessDenied("%s", requestErr.Error())
		}
		// DynamoDB reports a missing table with a 400 status code
		// instead of a 404.
		if strings.Contains(requestErr.Error(), "ResourceNotFoundException") {
			return trace.NotFound("%s", requestErr.Error())
		}
	}

	return requestErr // Return unmodified.
}

// ConvertError converts typed API errors from the AWS services the control
// plane drives (S3, CloudFront, Lambda, DynamoDB and Step Functions) to
// trace errors. Errors carrying no type information fall back to error
// code and HTTP status conversion.
//
// If the error is not recognized, returns the original error.
func ConvertError(err error) error {
	if err == nil {
		return nil
	}

	var noBucket *s3types.NoSuchBucket
	var noKey *s3types.NoSuchKey
	var noDistribution *cftypes.NoSuchDistribution
	var noOAC *cftypes.NoSuchOriginAccessControl
	var noOAI *cftypes.NoSuchCloudFrontOriginAccessIdentity
	var lambdaNotFound *lambdatypes.ResourceNotFoundException
	var tableNotFound *dynamodbtypes.ResourceNotFoundException
	var noStateMachine *sfntypes.StateMachineDoesNotExist
	var bucketExists *s3types.BucketAlreadyExists
	var bucketOwned *s3types.BucketAlreadyOwnedByYou
	var distributionExists *cftypes.DistributionAlreadyExists
	var lambdaConflict *lambdatypes.ResourceConflictException
	var executionExists *sfntypes.ExecutionAlreadyExists
	var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
	var notDisabled *cftypes.DistributionNotDisabled
	var oacInUse *cftypes.OriginAccessControlInUse
	var oaiInUse *cftypes.CloudFrontOriginAccessIdentityInUse
	var badIfMatch *cftypes.InvalidIfMatchVersion
	var preconditionFailed *cftypes.PreconditionFailed
	var lambdaBadParam *lambdatypes.InvalidParameterValueException
	var badExecutionInput *sfntypes.InvalidExecutionInput
	var badARN *sfntypes.InvalidArn
	var cfDenied *cftypes.AccessDenied
	var lambdaThrottled *lambdatypes.TooManyRequestsException
	var throughputExceeded *dynamodbtypes.ProvisionedThroughputExceededException
	var executionsExceeded *sfntypes.ExecutionLimitExceeded

	switch {
	case errors.As(err, &noBucket),
		errors.As(err, &noKey),
		errors.As(err, &noDistribution),
		errors.As(err, &noOAC),
		errors.As(err, &noOAI),
		errors.As(err, &lambdaNotFound),
		errors.As(err, &tableNotFound),
		errors.As(err, &noStateMachine):
		return trace.NotFound("%s", err.Error())
	case errors.As(err, &bucketExists),
		errors.As(err, &bucketOwned),
		errors.As(err, &distributionExists),
		errors.As(err, &lambdaConflict),
		errors.As(err, &executionExists):
		return trace.AlreadyExists("%s", err.Error())
	case errors.As(err, &conditionFailed),
		errors.As(err, &notDisabled),
		errors.As(err, &oacInUse),
		errors.As(err, &oaiInUse),
		errors.As(err, &badIfMatch),
		errors.As(err, &preconditionFailed):
		return trace.CompareFailed("%s", err.Error())
	case errors.As(err, &lambdaBadParam),
		errors.As(err, &badExecutionInput),
		errors.As(err, &badARN):
		return trace.BadParameter("%s", err.Error())
	case errors.As(err, &cfDenied):
		return trace.AccessDenied("%s", err.Error())
	case errors.As(err, &lambdaThrottled),
		errors.As(err, &throughputExceeded),
		errors.As(err, &executionsExceeded):
		return trace.LimitExceeded("%s", err.Error())
	}

	// S3 reports several failure modes, NoSuchBucketPolicy and
	// BucketNotEmpty among them, without a typed exception.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucketPolicy":
			return trace.NotFound("%s", err.Error())
		case "BucketNotEmpty":
			return trace.CompareFailed("%s", err.Error())
		}
	}

	return ConvertRequestFailureError(err)
}

// IsErrorCode returns true if the error is an AWS API error with the given
// error code.
func IsErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
