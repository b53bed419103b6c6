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
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/defaults"
)

const (
	// functionHandler is the entrypoint of the uploaded bundle.
	functionHandler = "index.handler"
	// functionDescription is set on every routing function.
	functionDescription = "Lambda@Edge function for multi-origin routing"
	// functionTimeoutSeconds bounds a single invocation. CloudFront caps
	// origin request handlers at 30 seconds.
	functionTimeoutSeconds = 5
	// functionMemoryMB is the allocated memory per invocation.
	functionMemoryMB = 128
	// edgeLambdaPrincipal is the service principal CloudFront uses to
	// replicate and invoke edge functions.
	edgeLambdaPrincipal = "edgelambda.amazonaws.com"
	// invokeStatementID identifies the permission statement that lets
	// CloudFront invoke the published version.
	invokeStatementID = "cloudfront-invoke"
	// invokeAction is the permission granted to CloudFront.
	invokeAction = "lambda:InvokeFunction"
)

// NewFunctionID returns a new edge function record identifier.
func NewFunctionID() string {
	return fmt.Sprintf("func-%s", uuid.NewString()[:8])
}

// FunctionName returns the Lambda function name used for a distribution's
// routing function.
func FunctionName(distributionName, functionID string) string {
	return fmt.Sprintf("%s-multi-origin-func-%s", distributionName, functionID)
}

// DeployRequest contains the parameters for publishing a routing function.
type DeployRequest struct {
	// FunctionName is the name of the Lambda function to create.
	FunctionName string
	// RoleARN is the execution role assumed by the function. The role must
	// be assumable by both lambda.amazonaws.com and edgelambda.amazonaws.com.
	RoleARN string
	// Code is the generated function source.
	Code string
	// Clock paces the activation poll.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks the request fields and sets defaults.
func (req *DeployRequest) CheckAndSetDefaults() error {
	if req.FunctionName == "" {
		return trace.BadParameter("function name is required")
	}
	if req.RoleARN == "" {
		return trace.BadParameter("role arn is required")
	}
	if req.Code == "" {
		return trace.BadParameter("function code is required")
	}
	if req.Clock == nil {
		req.Clock = clockwork.NewRealClock()
	}
	return nil
}

// DeployResponse contains the identifiers of the published function version.
type DeployResponse struct {
	// FunctionARN is the unqualified function ARN.
	FunctionARN string
	// Version is the published version number.
	Version string
	// VersionARN is the qualified ARN of the published version. CloudFront
	// only accepts versioned ARNs for edge function associations, never the
	// $LATEST head pointer.
	VersionARN string
}

// Deploy creates the routing function, publishes a version, waits for the
// function to become active and grants CloudFront permission to invoke the
// published version. The permission is granted only after activation
// succeeds, so a timed out deployment leaves no invocable function behind.
func Deploy(ctx context.Context, clt LambdaClient, req DeployRequest) (*DeployResponse, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	log := slog.With(slipstream.ComponentKey, slipstream.ComponentEdgeFunc)

	bundle, err := zipFunctionCode(req.Code)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	log.InfoContext(ctx, "Creating edge function", "function", req.FunctionName)
	createOut, err := clt.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(req.FunctionName),
		Runtime:      lambdatypes.RuntimeNodejs18x,
		Role:         aws.String(req.RoleARN),
		Handler:      aws.String(functionHandler),
		Description:  aws.String(functionDescription),
		Timeout:      aws.Int32(functionTimeoutSeconds),
		MemorySize:   aws.Int32(functionMemoryMB),
		Publish:      true,
		Code: &lambdatypes.FunctionCode{
			ZipFile: bundle,
		},
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}

	functionARN := aws.ToString(createOut.FunctionArn)
	version := aws.ToString(createOut.Version)
	if version == "" {
		version = "1"
	}

	if err := waitForActive(ctx, clt, req.FunctionName, req.Clock); err != nil {
		return nil, trace.Wrap(err)
	}
	log.InfoContext(ctx, "Edge function is active", "function", req.FunctionName, "version", version)

	_, err = clt.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(req.FunctionName),
		StatementId:  aws.String(invokeStatementID),
		Action:       aws.String(invokeAction),
		Principal:    aws.String(edgeLambdaPrincipal),
		Qualifier:    aws.String(version),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}

	return &DeployResponse{
		FunctionARN: functionARN,
		Version:     version,
		VersionARN:  fmt.Sprintf("%s:%s", functionARN, version),
	}, nil
}

// waitForActive polls the function state until it reaches Active. Freshly
// created functions stay Pending while Lambda provisions them.
func waitForActive(ctx context.Context, clt LambdaClient, functionName string, clock clockwork.Clock) error {
	deadline := clock.Now().Add(defaults.FunctionActivationTimeout)
	for {
		out, err := clt.GetFunction(ctx, &lambda.GetFunctionInput{
			FunctionName: aws.String(functionName),
		})
		if err != nil {
			return trace.Wrap(awslib.ConvertError(err))
		}
		switch out.Configuration.State {
		case lambdatypes.StateActive:
			return nil
		case lambdatypes.StateFailed:
			return trace.BadParameter("function %v failed to activate: %v",
				functionName, aws.ToString(out.Configuration.StateReason))
		}
		if !clock.Now().Before(deadline) {
			return trace.LimitExceeded("function %v did not become active within %v, try again later",
				functionName, defaults.FunctionActivationTimeout)
		}
		select {
		case <-clock.After(defaults.FunctionActivationPollInterval):
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		}
	}
}

// zipFunctionCode packages the source as index.js in an in-memory zip
// archive, the format the Lambda API expects for inline code uploads.
func zipFunctionCode(code string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateHeader(&zip.FileHeader{
		Name:   "index.js",
		Method: zip.Deflate,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if _, err := f.Write([]byte(code)); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := w.Close(); err != nil {
		return nil, trace.Wrap(err)
	}
	return buf.Bytes(), nil
}
