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

package edgefunc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/gravitational/trace"

	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
)

// DeleteRequest contains the parameters for deleting a routing function.
type DeleteRequest struct {
	// FunctionName is the name of the Lambda function to delete.
	FunctionName string
}

// CheckAndSetDefaults checks the request fields.
func (req *DeleteRequest) CheckAndSetDefaults() error {
	if req.FunctionName == "" {
		return trace.BadParameter("function name is required")
	}
	return nil
}

// Delete removes the routing function. A function that is already gone is
// treated as deleted. Replicated edge functions cannot be deleted until
// CloudFront releases the replicas, which can take hours after the last
// distribution stops referencing the version, so callers running cleanup
// should treat the returned error as retryable.
func Delete(ctx context.Context, clt LambdaClient, req DeleteRequest) error {
	if err := req.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	_, err := clt.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(req.FunctionName),
	})
	if err != nil {
		err = awslib.ConvertError(err)
		if trace.IsNotFound(err) {
			return nil
		}
		return trace.Wrap(err)
	}
	return nil
}
