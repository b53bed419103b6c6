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
)

// LambdaClient describes the required methods of the Lambda API.
type LambdaClient interface {
	// CreateFunction creates a Lambda function.
	// https://docs.aws.amazon.com/lambda/latest/api/API_CreateFunction.html
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)

	// GetFunction returns information about the function.
	// https://docs.aws.amazon.com/lambda/latest/api/API_GetFunction.html
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)

	// AddPermission grants a principal permission to use the function.
	// https://docs.aws.amazon.com/lambda/latest/api/API_AddPermission.html
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)

	// DeleteFunction deletes the function.
	// https://docs.aws.amazon.com/lambda/latest/api/API_DeleteFunction.html
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

type defaultLambdaClient struct {
	*lambda.Client
}

// NewLambdaClient creates a LambdaClient using an AWS SDK config. Edge
// functions are managed through the us-east-1 endpoint, so the config must
// be loaded for that region.
func NewLambdaClient(cfg aws.Config) LambdaClient {
	return &defaultLambdaClient{
		Client: lambda.NewFromConfig(cfg),
	}
}
