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

// Package store persists the control plane records (origins, distributions,
// edge functions and change history) in DynamoDB.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/defaults"
)

// DynamoClient describes the required methods of the DynamoDB API.
type DynamoClient interface {
	// GetItem returns a set of attributes for the item with the given
	// primary key.
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	// PutItem creates a new item, or replaces an old item with a new item.
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	// DeleteItem deletes a single item by primary key.
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	// UpdateItem edits an existing item's attributes.
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	// Scan returns items by accessing every item in a table.
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	// Query returns items based on primary key values.
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// NewDynamoClient creates a DynamoClient using an AWS SDK config.
func NewDynamoClient(cfg aws.Config) DynamoClient {
	return dynamodb.NewFromConfig(cfg)
}

// Config is the store configuration.
type Config struct {
	// Client is the DynamoDB client.
	Client DynamoClient
	// OriginsTable is the origins table name.
	OriginsTable string
	// DistributionsTable is the distributions table name.
	DistributionsTable string
	// EdgeFunctionsTable is the edge functions table name.
	EdgeFunctionsTable string
	// HistoryTable is the change history table name.
	HistoryTable string
	// Clock is used for record timestamps. Defaults to the real clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks if the required fields are present.
func (c *Config) CheckAndSetDefaults() error {
	if c.Client == nil {
		return trace.BadParameter("client is required")
	}
	if c.OriginsTable == "" {
		c.OriginsTable = defaults.OriginsTable
	}
	if c.DistributionsTable == "" {
		c.DistributionsTable = defaults.DistributionsTable
	}
	if c.EdgeFunctionsTable == "" {
		c.EdgeFunctionsTable = defaults.EdgeFunctionsTable
	}
	if c.HistoryTable == "" {
		c.HistoryTable = defaults.HistoryTable
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store reads and writes control plane records.
type Store struct {
	cfg Config
	log *slog.Logger
}

// New creates a Store with the given config.
func New(cfg Config) (*Store, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Store{
		cfg: cfg,
		log: slog.With(slipstream.ComponentKey, slipstream.ComponentStore),
	}, nil
}

func (s *Store) now() time.Time {
	return s.cfg.Clock.Now().UTC()
}

func originKey(originID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"originId": &types.AttributeValueMemberS{Value: originID},
	}
}

func distributionKey(distributionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"distributionId": &types.AttributeValueMemberS{Value: distributionID},
	}
}

func edgeFunctionKey(functionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"functionId": &types.AttributeValueMemberS{Value: functionID},
	}
}

// GetOrigin returns the origin record with the given ID.
func (s *Store) GetOrigin(ctx context.Context, originID string) (*Origin, error) {
	if originID == "" {
		return nil, trace.BadParameter("origin id is required")
	}
	out, err := s.cfg.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.OriginsTable),
		Key:            originKey(originID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	if len(out.Item) == 0 {
		return nil, trace.NotFound("origin %v not found", originID)
	}
	var origin Origin
	if err := attributevalue.UnmarshalMap(out.Item, &origin); err != nil {
		return nil, trace.Wrap(err)
	}
	return &origin, nil
}

// PutOrigin writes the origin record, stamping the timestamps.
func (s *Store) PutOrigin(ctx context.Context, origin *Origin) error {
	if origin == nil || origin.OriginID == "" {
		return trace.BadParameter("origin id is required")
	}
	if origin.CreatedAt.IsZero() {
		origin.CreatedAt = s.now()
	}
	origin.UpdatedAt = s.now()
	item, err := attributevalue.MarshalMap(origin)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.OriginsTable),
		Item:      item,
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// DeleteOrigin removes the origin record. The delete is conditional on the
// using set being empty, so an origin a concurrent create just attached a
// distribution to survives with a CompareFailed error.
func (s *Store) DeleteOrigin(ctx context.Context, originID string) error {
	if originID == "" {
		return trace.BadParameter("origin id is required")
	}
	_, err := s.cfg.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.cfg.OriginsTable),
		Key:                 originKey(originID),
		ConditionExpression: aws.String("attribute_not_exists(associatedDistributions)"),
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// ListOrigins returns every origin record.
func (s *Store) ListOrigins(ctx context.Context) ([]Origin, error) {
	var origins []Origin
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.cfg.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.cfg.OriginsTable),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, trace.Wrap(awslib.ConvertError(err))
		}
		var page []Origin
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, trace.Wrap(err)
		}
		origins = append(origins, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return origins, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// AddOriginDistribution atomically adds the distribution ID to the
// origin's using set. Adding an ID already in the set changes nothing.
func (s *Store) AddOriginDistribution(ctx context.Context, originID, distributionID string) error {
	if originID == "" {
		return trace.BadParameter("origin id is required")
	}
	if distributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	now, err := attributevalue.Marshal(s.now())
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.cfg.OriginsTable),
		Key:                 originKey(originID),
		UpdateExpression:    aws.String("ADD associatedDistributions :d SET updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(originId)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":   &types.AttributeValueMemberSS{Value: []string{distributionID}},
			":now": now,
		},
	})
	if err != nil {
		err = awslib.ConvertError(err)
		if trace.IsCompareFailed(err) {
			return trace.NotFound("origin %v not found", originID)
		}
		return trace.Wrap(err)
	}
	s.log.DebugContext(ctx, "Added distribution to origin using set",
		"origin", originID,
		"distribution", distributionID,
	)
	return nil
}

// RemoveOriginDistribution atomically removes the distribution ID from the
// origin's using set. Removing the last ID removes the set attribute.
// A missing origin record counts as removed.
func (s *Store) RemoveOriginDistribution(ctx context.Context, originID, distributionID string) error {
	if originID == "" {
		return trace.BadParameter("origin id is required")
	}
	if distributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	now, err := attributevalue.Marshal(s.now())
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.cfg.OriginsTable),
		Key:                 originKey(originID),
		UpdateExpression:    aws.String("DELETE associatedDistributions :d SET updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(originId)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":   &types.AttributeValueMemberSS{Value: []string{distributionID}},
			":now": now,
		},
	})
	if err != nil {
		err = awslib.ConvertError(err)
		if trace.IsCompareFailed(err) {
			return nil
		}
		return trace.Wrap(err)
	}
	s.log.DebugContext(ctx, "Removed distribution from origin using set",
		"origin", originID,
		"distribution", distributionID,
	)
	return nil
}

// GetDistribution returns the distribution record with the given ID.
func (s *Store) GetDistribution(ctx context.Context, distributionID string) (*Distribution, error) {
	if distributionID == "" {
		return nil, trace.BadParameter("distribution id is required")
	}
	out, err := s.cfg.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.DistributionsTable),
		Key:            distributionKey(distributionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	if len(out.Item) == 0 {
		return nil, trace.NotFound("distribution %v not found", distributionID)
	}
	var distribution Distribution
	if err := attributevalue.UnmarshalMap(out.Item, &distribution); err != nil {
		return nil, trace.Wrap(err)
	}
	return &distribution, nil
}

// PutDistribution writes the distribution record, stamping the timestamps
// and the initial version.
func (s *Store) PutDistribution(ctx context.Context, distribution *Distribution) error {
	if distribution == nil || distribution.DistributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	if distribution.CreatedAt.IsZero() {
		distribution.CreatedAt = s.now()
	}
	if distribution.Version == 0 {
		distribution.Version = 1
	}
	distribution.UpdatedAt = s.now()
	item, err := attributevalue.MarshalMap(distribution)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.DistributionsTable),
		Item:      item,
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// DeleteDistribution removes the distribution record.
func (s *Store) DeleteDistribution(ctx context.Context, distributionID string) error {
	if distributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	_, err := s.cfg.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.DistributionsTable),
		Key:       distributionKey(distributionID),
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// UpdateDistributionStatus transitions the distribution record between the
// two statuses. The write is conditional on the record still carrying the
// from status, so concurrent checkers observing the same change race to a
// single winner. Losers get a CompareFailed error.
func (s *Store) UpdateDistributionStatus(ctx context.Context, distributionID string, from, to Status) error {
	if distributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	if from == to {
		return trace.BadParameter("from and to status are the same")
	}
	now, err := attributevalue.Marshal(s.now())
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.cfg.DistributionsTable),
		Key:                 distributionKey(distributionID),
		UpdateExpression:    aws.String("SET #status = :to, updatedAt = :now, version = if_not_exists(version, :zero) + :one"),
		ConditionExpression: aws.String("#status = :from"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":now":  now,
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// ScanPendingDistributions returns every distribution still waiting on
// CloudFront propagation, meaning status Creating or InProgress. Records
// without a CloudFront ID have nothing to check and are skipped.
func (s *Store) ScanPendingDistributions(ctx context.Context) ([]Distribution, error) {
	var pending []Distribution
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.cfg.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.cfg.DistributionsTable),
			FilterExpression:  aws.String("(#status = :creating OR #status = :inprogress) AND attribute_exists(cloudfrontId)"),
			ExclusiveStartKey: startKey,
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":creating":   &types.AttributeValueMemberS{Value: string(StatusCreating)},
				":inprogress": &types.AttributeValueMemberS{Value: string(StatusInProgress)},
			},
		})
		if err != nil {
			return nil, trace.Wrap(awslib.ConvertError(err))
		}
		var page []Distribution
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, trace.Wrap(err)
		}
		pending = append(pending, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return pending, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// GetEdgeFunction returns the edge function record with the given ID.
func (s *Store) GetEdgeFunction(ctx context.Context, functionID string) (*EdgeFunction, error) {
	if functionID == "" {
		return nil, trace.BadParameter("function id is required")
	}
	out, err := s.cfg.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.EdgeFunctionsTable),
		Key:            edgeFunctionKey(functionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	if len(out.Item) == 0 {
		return nil, trace.NotFound("edge function %v not found", functionID)
	}
	var fn EdgeFunction
	if err := attributevalue.UnmarshalMap(out.Item, &fn); err != nil {
		return nil, trace.Wrap(err)
	}
	return &fn, nil
}

// PutEdgeFunction writes the edge function record, stamping the
// timestamps.
func (s *Store) PutEdgeFunction(ctx context.Context, fn *EdgeFunction) error {
	if fn == nil || fn.FunctionID == "" {
		return trace.BadParameter("function id is required")
	}
	if fn.CreatedAt.IsZero() {
		fn.CreatedAt = s.now()
	}
	fn.UpdatedAt = s.now()
	item, err := attributevalue.MarshalMap(fn)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.EdgeFunctionsTable),
		Item:      item,
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// DeleteEdgeFunction removes the edge function record.
func (s *Store) DeleteEdgeFunction(ctx context.Context, functionID string) error {
	if functionID == "" {
		return trace.BadParameter("function id is required")
	}
	_, err := s.cfg.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.EdgeFunctionsTable),
		Key:       edgeFunctionKey(functionID),
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// AppendHistory writes a change history entry. A zero timestamp is set to
// the current time.
func (s *Store) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if entry.DistributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	if entry.Action == "" {
		return trace.BadParameter("action is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.User == "" {
		entry.User = SystemUser
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = s.cfg.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.HistoryTable),
		Item:      item,
	})
	return trace.Wrap(awslib.ConvertError(err))
}

// ListHistory returns the change history of a distribution in
// chronological order.
func (s *Store) ListHistory(ctx context.Context, distributionID string) ([]HistoryEntry, error) {
	if distributionID == "" {
		return nil, trace.BadParameter("distribution id is required")
	}
	var entries []HistoryEntry
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.cfg.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.cfg.HistoryTable),
			KeyConditionExpression: aws.String("distributionId = :id"),
			ExclusiveStartKey:      startKey,
			ScanIndexForward:       aws.Bool(true),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: distributionID},
			},
		})
		if err != nil {
			return nil, trace.Wrap(awslib.ConvertError(err))
		}
		var page []HistoryEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, trace.Wrap(err)
		}
		entries = append(entries, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
